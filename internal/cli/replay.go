package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/common/messaging"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/pipeline"
	"github.com/telhawk-systems/trailhawk/internal/source"
	"github.com/telhawk-systems/trailhawk/internal/store"
)

var errBatchesRejected = errors.New("one or more batches were rejected")

type replayOptions struct {
	output  string
	dryRun  bool
	publish bool
	format  string
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	ro := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay FILE|s3://BUCKET/KEY...",
		Short: "Land batch files through the pipeline",
		Long: `Run each batch file or S3 object through decode, parse and persist and
print the per-record outcomes. Framing is detected automatically (gzip,
base64 gzip or plain JSON) unless pipeline.decoder is set. Use "-" to read
stdin.

With --publish the raw batches are published to the NATS subject instead,
for a running "trailhawk consume" to land.`,
		Example: `  trailhawk replay --dry-run batch.json.gz
  trailhawk replay -o json s3://trail-bucket/AWSLogs/123/CloudTrail/us-east-1/2024/03/01/f.json.gz
  trailhawk replay --publish logs/*.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(ro.output); err != nil {
				return err
			}
			format, err := parser.ParseFormat(ro.format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a := opts.newApp()
			defer a.Close()

			fetch := func(ctx context.Context, input string) ([]byte, error) {
				if !source.IsS3URI(input) {
					return source.ReadBatchFile(input)
				}
				ref, err := source.ParseS3URI(input)
				if err != nil {
					return nil, err
				}
				fetcher, err := a.S3Fetcher(ctx)
				if err != nil {
					return nil, err
				}
				return fetcher.Fetch(ctx, ref)
			}

			if ro.publish {
				js, err := a.JetStream()
				if err != nil {
					return err
				}
				return publishBatches(ctx, cmd, js, opts.cfg.NATS.Subject, args, fetch)
			}

			var s store.Store
			if ro.dryRun {
				s = store.NewMemoryStore()
			} else if s, err = a.Store(ctx); err != nil {
				return err
			}

			p, err := a.PipelineOn(ctx, s, "auto", format)
			if err != nil {
				return err
			}

			reports, rejected := replayBatches(ctx, p, opts.logger, args, fetch)
			if err := printReports(cmd.OutOrStdout(), ro.output, reports); err != nil {
				return err
			}
			if rejected > 0 {
				return fmt.Errorf("%w (%d of %d)", errBatchesRejected, rejected, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&ro.output, "output", "o", formatTable, "output format: table, json, yaml")
	cmd.Flags().BoolVar(&ro.dryRun, "dry-run", false, "write to an in-memory store instead of the configured backend")
	cmd.Flags().BoolVar(&ro.publish, "publish", false, "publish raw batches to NATS instead of landing them")
	cmd.Flags().StringVar(&ro.format, "format", "auto", "batch layout: logevents, records, auto")
	return cmd
}

type fetchFunc func(ctx context.Context, input string) ([]byte, error)

// replayBatches runs inputs sequentially. Each input is one invocation with
// its own request ID.
func replayBatches(ctx context.Context, p *pipeline.Pipeline, logger *logging.Logger, inputs []string, fetch fetchFunc) ([]batchReport, int) {
	reports := make([]batchReport, 0, len(inputs))
	rejected := 0

	for _, input := range inputs {
		runCtx := logging.WithRequestID(ctx, uuid.NewString())
		report := batchReport{Input: input}

		raw, err := fetch(runCtx, input)
		if err == nil {
			report.Outcomes, err = p.Run(runCtx, raw)
		}
		if err != nil {
			logger.ErrorContext(runCtx, "batch failed", logging.Source(input), logging.Error(err))
			report.Error = err.Error()
			rejected++
		}
		reports = append(reports, report)
	}
	return reports, rejected
}

func publishBatches(ctx context.Context, cmd *cobra.Command, pub messaging.Publisher, subject string, inputs []string, fetch fetchFunc) error {
	for _, input := range inputs {
		raw, err := fetch(ctx, input)
		if err != nil {
			return err
		}
		msg := &messaging.Message{
			Subject:  subject,
			Data:     raw,
			Metadata: map[string]string{source.HeaderMsgID: uuid.NewString()},
		}
		if err := pub.PublishMsg(ctx, msg); err != nil {
			return fmt.Errorf("publish %s: %w", input, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s (%d bytes)\n", input, subject, len(raw))
	}
	return nil
}
