package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"regimelab/internal/config"
	"regimelab/internal/ledger"
	"regimelab/internal/manifest"
	"regimelab/internal/sweep"
)

func newSimulateCmd(a *app) *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the full factorial sweep (every level under every regime)",
		Long: `simulate invokes the engine once per (regime, level) pair, strictly in
sequence, and moves each run's terminal and timeseries CSV into the results
tree. The first failure aborts the sweep; completed pairs keep their files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), a, resume)
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false,
		"skip pairs a previous identical sweep already completed")
	return cmd
}

func runSimulate(ctx context.Context, a *app, resume bool) error {
	driver, led, err := newSweepDriver(a, resume)
	if err != nil {
		return err
	}
	defer led.Close()

	res, err := driver.Run(ctx)
	if res != nil {
		a.log.Info("sweep finished",
			zap.String("run_id", res.RunID),
			zap.Int("completed", res.Completed),
			zap.Int("skipped", res.Skipped))
	}
	return err
}

// newSweepDriver assembles the sweep from the loaded configuration. The
// caller owns closing the returned ledger.
func newSweepDriver(a *app, resume bool) (*sweep.Driver, *ledger.Ledger, error) {
	cfg := a.cfg

	plan, err := sweep.NewPlan(cfg.Sweep.Regimes, cfg.Sweep.ExpandLevels(), cfg.Sweep.SeedCount)
	if err != nil {
		return nil, nil, &config.LoadError{Path: a.configPath, Err: err}
	}

	backoff, err := cfg.Retry.ParseBackoff()
	if err != nil {
		return nil, nil, &config.LoadError{Path: a.configPath, Err: err}
	}

	led, err := ledger.Open(cfg.Paths.LedgerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	journal, err := manifest.NewRecorder(cfg.Paths.ManifestPath)
	if err != nil {
		led.Close()
		return nil, nil, fmt.Errorf("open manifest: %w", err)
	}

	driver := &sweep.Driver{
		Plan:      plan,
		Invoker:   sweep.NewInvoker(cfg.Engine.Binary, cfg.Engine.WorkDir),
		Collector: sweep.NewCollector(cfg.EngineOutputDir(), cfg.Paths.ResultsDir),
		Recorder:  led,
		Journal:   journal,
		Retry: sweep.RetryPolicy{
			Attempts: cfg.Retry.Attempts,
			Backoff:  backoff,
		},
		Resume: resume,
		Log:    a.log,
	}
	return driver, led, nil
}
