package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"regimelab/internal/ledger"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List recorded sweep runs and their pair counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := ledger.Open(a.cfg.Paths.LedgerPath)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer led.Close()

			runs, err := led.Runs()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tSEEDS\tCOMPLETED\tFAILED\tSKIPPED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.RunID, r.StartedAt, r.Status, r.SeedCount,
					r.Completed, r.Failed, r.Skipped)
			}
			return w.Flush()
		},
	}
}
