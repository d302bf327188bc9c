// Package figures drives chart generation: it materializes the textual
// summary tables from the collected results, then invokes the external
// plotting scripts one by one in their configured order.
//
// The stage performs no input validation beyond what the summaries need; a
// missing CSV is discovered by the plotting script that tries to read it,
// and its failure aborts the stage.
package figures

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"regimelab/internal/report"
	"regimelab/internal/results"
)

// Plotter is one external plotting command, run via the shell.
type Plotter struct {
	Name    string
	Command string
}

// PlotterFailureError is a plotting command that exited non-zero.
type PlotterFailureError struct {
	Name     string
	ExitCode int
	Stderr   []byte
}

func (e *PlotterFailureError) Error() string {
	return fmt.Sprintf("plotter %q failed with exit code %d", e.Name, e.ExitCode)
}

// Stage generates all figures and summaries from an existing results tree.
type Stage struct {
	Layout  results.Layout
	Regimes []string
	Levels  []int

	// Plotters run in slice order after the summaries are written.
	Plotters []Plotter

	// WorkDir is the working directory for plotting commands.
	WorkDir string

	Log *zap.Logger
}

// Summary artifacts the stage writes into the figures directory.
const (
	SweepSummaryName   = "sweep_summary.txt"
	WelfareSummaryName = "welfare_summary.csv"
)

// Run generates summaries and figures, stopping at the first failure.
func (s *Stage) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(s.Layout.FiguresDir, 0o755); err != nil {
		return fmt.Errorf("ensure figures dir: %w", err)
	}

	if len(s.Regimes) >= 2 {
		if err := s.writeSummaries(log); err != nil {
			return err
		}
	}

	for _, p := range s.Plotters {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("figures aborted: %w", err)
		}
		log.Info("running plotter", zap.String("name", p.Name))
		if err := runShell(ctx, s.WorkDir, p); err != nil {
			return err
		}
	}
	return nil
}

// writeSummaries renders the regime comparison for the first two configured
// regimes (the reference design compares exactly two).
func (s *Stage) writeSummaries(log *zap.Logger) error {
	a, err := report.LoadRegimeStats(s.Layout, s.Regimes[0], s.Levels)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", s.Regimes[0], err)
	}
	b, err := report.LoadRegimeStats(s.Layout, s.Regimes[1], s.Levels)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", s.Regimes[1], err)
	}
	for _, rs := range []*report.RegimeStats{a, b} {
		for _, level := range rs.Missing {
			log.Warn("terminal table missing, level excluded from summary",
				zap.String("regime", rs.Regime), zap.Int("level", level))
		}
	}

	var sb strings.Builder
	if err := report.RenderSweepSummary(&sb, a, b); err != nil {
		return fmt.Errorf("render sweep summary: %w", err)
	}
	sweepPath := filepath.Join(s.Layout.FiguresDir, SweepSummaryName)
	if err := os.WriteFile(sweepPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write sweep summary: %w", err)
	}

	if err := s.writeWelfareSummary(); err != nil {
		return err
	}
	log.Info("summaries written", zap.String("dir", s.Layout.FiguresDir))
	return nil
}

// writeWelfareSummary evaluates the welfare model per available (regime,
// level) pair and writes one CSV row each, in the engine's own dialect.
func (s *Stage) writeWelfareSummary() error {
	var sb strings.Builder
	sb.WriteString("Regime;Level;RealConsPc_mean;RealConsPc_std;Gini_mean;Gini_std\n")

	for _, regime := range s.Regimes {
		for _, level := range s.Levels {
			table, err := report.ReadTable(s.Layout.TerminalPath(regime, level))
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return fmt.Errorf("welfare %s/%d: %w", regime, level, err)
			}
			w, err := report.ComputeWelfare(table, regime, level)
			if err != nil {
				return fmt.Errorf("welfare %s/%d: %w", regime, level, err)
			}
			sb.WriteString(strings.Join([]string{
				regime,
				strconv.Itoa(level),
				formatDecimal(w.RealConsumptionPC.Mean),
				formatDecimal(w.RealConsumptionPC.Std),
				formatDecimal(w.Gini.Mean),
				formatDecimal(w.Gini.Std),
			}, ";"))
			sb.WriteByte('\n')
		}
	}

	path := filepath.Join(s.Layout.FiguresDir, WelfareSummaryName)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write welfare summary: %w", err)
	}
	return nil
}

// formatDecimal renders a float with a decimal comma, matching the engine's
// CSV dialect so downstream loaders need a single parser.
func formatDecimal(v float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(v, 'f', 6, 64), ".", ",")
}

// runShell executes one plotting command via the shell, in its own process
// group so cancellation kills the whole tree.
func runShell(ctx context.Context, dir string, p Plotter) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", p.Command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting plotter %q: %w", p.Name, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return fmt.Errorf("plotter %q cancelled: %w", p.Name, ctx.Err())
	case waitErr = <-done:
	}

	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return fmt.Errorf("running plotter %q: %w", p.Name, waitErr)
		}
		return &PlotterFailureError{
			Name:     p.Name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.Bytes(),
		}
	}
	return nil
}
