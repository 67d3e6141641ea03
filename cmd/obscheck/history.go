// history command: lists runs and violations recorded in a report database
package main

import (
	"fmt"
	"os"

	"github.com/andrewh/obscheck/pkg/report"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		limit      int
		violations bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "history <runs.db>",
		Short: "Show runs recorded with run --record",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("missing report database\n\nUsage: obscheck history <runs.db>")
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("no report database at %s: %w", args[0], err)
			}
			store, err := report.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening report store: %w", err)
			}
			defer func() { _ = store.Close() }()

			if violations {
				vs, err := store.Violations(cmd.Context())
				if err != nil {
					return err
				}
				renderViolations(cmd.OutOrStdout(), vs, verbose)
				return nil
			}
			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show (0 = all)")
	cmd.Flags().BoolVar(&violations, "violations", false, "list recorded violations instead of runs")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the full report of every violation")

	return cmd
}
