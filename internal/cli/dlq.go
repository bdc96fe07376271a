package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/trailhawk/internal/dlq"
)

func newDLQCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect records no store accepted",
	}

	queue := func(cmd *cobra.Command) (dlq.Queue, func() error, error) {
		a := opts.newApp()
		q, err := a.DeadLetters(cmd.Context())
		if err != nil {
			a.Close()
			return nil, nil, err
		}
		if q == nil {
			a.Close()
			return nil, nil, fmt.Errorf("%w: set dlq.backend to file or jetstream", dlq.ErrDisabled)
		}
		return q, a.Close, nil
	}

	var (
		output string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			q, closeFn, err := queue(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := q.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printDeadLetters(cmd.OutOrStdout(), output, records)
		},
	}
	listCmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json, yaml")
	listCmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to list (0 for all)")

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every dead-lettered record",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := queue(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := q.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", n)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one dead-lettered record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := queue(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			d, ok := q.(dlq.Deleter)
			if !ok {
				return fmt.Errorf("dlq backend %q cannot delete single entries; use purge", opts.cfg.DLQ.Backend)
			}
			if err := d.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := queue(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return writeJSON(cmd.OutOrStdout(), q.Stats(cmd.Context()))
		},
	}

	cmd.AddCommand(listCmd, deleteCmd, purgeCmd, statsCmd)
	return cmd
}
