package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/trailhawk/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres store schema",
		Long: `Apply the audit_events schema to postgres.url. With --prune, also delete
rows whose expiry has passed; Postgres has no native row TTL, so schedule
this to enforce the retention window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			url := opts.cfg.Postgres.URL

			version, err := store.Migrate(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)

			if !prune {
				return nil
			}

			s, err := store.NewPostgresStore(ctx, url, opts.cfg.Postgres.MaxConns)
			if err != nil {
				return err
			}
			defer s.Close()

			deleted, err := s.DeleteExpired(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d expired records\n", deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "delete expired records after migrating")
	return cmd
}
