package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"regimelab/internal/results"
)

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove generated result CSVs, figures, and summary tables",
		Long: `clean deletes the files the harness generates (result CSVs, figure
images, summary tables) and nothing else. It is idempotent: running it on an
already-clean or absent tree succeeds and removes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := results.Layout{
				ResultsDir: a.cfg.Paths.ResultsDir,
				FiguresDir: a.cfg.Paths.FiguresDir,
			}
			removed, err := layout.Clean()
			if err != nil {
				return err
			}
			a.log.Info("clean finished", zap.Int("removed", removed))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d generated file(s)\n", removed)
			return nil
		},
	}
}
