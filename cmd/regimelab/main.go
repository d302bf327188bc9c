// regimelab is the reproducibility harness for the monetary-regime / basic-
// income sweep study: it drives the external simulation engine over the full
// factorial plan, files the artifacts, and regenerates the figures.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"regimelab/internal/config"
	"regimelab/internal/figures"
	"regimelab/internal/pipeline"
	"regimelab/internal/sweep"
)

// Process exit codes.
const (
	ExitSuccess           = 0
	ExitStageFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// app carries the per-invocation state shared by the subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *zap.Logger
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "regimelab:", err)
	}

	code := exitCodeFor(err)
	if err != nil && code == ExitInternalError && a.log == nil {
		// Execute failed before PersistentPreRunE ran, so cobra rejected the
		// invocation itself (unknown command, bad arguments).
		code = ExitInvalidInvocation
	}
	return code
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "regimelab",
		Short: "Reproducibility harness for the regime/UBI simulation sweep",
		Long: `regimelab drives the agent-based simulation engine over a full factorial
sweep of monetary regimes and basic-income levels, relocates every run's
artifacts into a stable results tree, and regenerates the study's figures.

The sweep is strictly sequential and fail-fast: one engine process at a time,
and the first failure aborts the remainder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zcfg := zap.NewProductionConfig()
			if a.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			log, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			a.log = log

			if a.configPath == "" {
				a.cfg = config.Default()
				return a.cfg.Validate()
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &invocationError{err: err}
	})

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"path to a YAML config file (defaults to the reference study design)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"enable debug logging")

	root.AddCommand(
		newSimulateCmd(a),
		newFiguresCmd(a),
		newAllCmd(a),
		newCleanCmd(a),
		newStatusCmd(a),
	)
	return root
}

// exitCodeFor maps an Execute error onto the process exit-code ladder.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		return ExitConfigError
	}

	var engineErr *sweep.EngineFailureError
	var missingErr *sweep.MissingOutputError
	var plotterErr *figures.PlotterFailureError
	var stageErr *pipeline.StageError
	if errors.As(err, &engineErr) || errors.As(err, &missingErr) ||
		errors.As(err, &plotterErr) || errors.As(err, &stageErr) {
		return ExitStageFailure
	}

	// Anything cobra raises before a RunE executes is a usage problem.
	var invErr *invocationError
	if errors.As(err, &invErr) {
		return ExitInvalidInvocation
	}

	return ExitInternalError
}

// invocationError marks command-line misuse (unknown flags, bad arguments).
type invocationError struct{ err error }

func (e *invocationError) Error() string { return e.err.Error() }
func (e *invocationError) Unwrap() error { return e.err }
