// Package cli implements the trailhawk command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/app"
	"github.com/telhawk-systems/trailhawk/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *logging.Logger
}

// newApp builds an App from the loaded configuration.
func (o *rootOptions) newApp() *app.App {
	return app.New(o.cfg, o.logger)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "trailhawk",
		Short: "Land CloudTrail audit batches in a key-value store",
		Long: `trailhawk decodes CloudWatch Logs and CloudTrail audit batches, resolves
the acting access key and user of each event, and upserts one record per
event with a 90-day expiry.

It runs as an AWS Lambda function, a NATS consumer, or a one-shot replay
of batch files.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.Logging.Format = opts.logFormat
			}

			opts.cfg = cfg
			opts.logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
				With(logging.Service("trailhawk"))
			logging.SetDefault(opts.logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.yaml or /etc/trailhawk/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: json, text")

	root.AddCommand(
		newLambdaCmd(opts),
		newReplayCmd(opts),
		newConsumeCmd(opts),
		newMigrateCmd(opts),
		newDLQCmd(opts),
	)
	return root
}

// Execute runs the command tree.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
