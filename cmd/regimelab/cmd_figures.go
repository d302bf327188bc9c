package main

import (
	"context"

	"github.com/spf13/cobra"

	"regimelab/internal/figures"
	"regimelab/internal/results"
)

func newFiguresCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "figures",
		Short: "Regenerate summaries and figures from the results tree",
		Long: `figures rebuilds the sweep summary and welfare tables from whatever the
results tree currently holds, then runs the configured plotting commands in
order. A plotting failure aborts the stage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFigures(cmd.Context(), a)
		},
	}
}

func runFigures(ctx context.Context, a *app) error {
	return newFiguresStage(a).Run(ctx)
}

func newFiguresStage(a *app) *figures.Stage {
	cfg := a.cfg
	plotters := make([]figures.Plotter, len(cfg.Figures.Plotters))
	for i, p := range cfg.Figures.Plotters {
		plotters[i] = figures.Plotter{Name: p.Name, Command: p.Command}
	}
	return &figures.Stage{
		Layout: results.Layout{
			ResultsDir: cfg.Paths.ResultsDir,
			FiguresDir: cfg.Paths.FiguresDir,
		},
		Regimes:  cfg.Sweep.Regimes,
		Levels:   cfg.Sweep.ExpandLevels(),
		Plotters: plotters,
		Log:      a.log,
	}
}
