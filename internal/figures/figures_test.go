package figures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regimelab/internal/results"
)

const terminalHeader = "TotalAdoption;Inflation;Unemployment;MarketWage;PriceLevel;EffectiveBDP\n"

type stageFixture struct {
	workDir string
	layout  results.Layout
	logPath string
}

func newStageFixture(t *testing.T) *stageFixture {
	t.Helper()
	tmp := t.TempDir()
	return &stageFixture{
		workDir: tmp,
		layout: results.Layout{
			ResultsDir: filepath.Join(tmp, "results"),
			FiguresDir: filepath.Join(tmp, "figures"),
		},
		logPath: filepath.Join(tmp, "plotters.log"),
	}
}

func (f *stageFixture) writeTerminal(t *testing.T, regime string, level int, rows string) {
	t.Helper()
	path := f.layout.TerminalPath(regime, level)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(terminalHeader+rows), 0o644))
}

// plotter returns a Plotter that appends its name to the shared log.
func (f *stageFixture) plotter(name string) Plotter {
	return Plotter{
		Name:    name,
		Command: fmt.Sprintf("echo %s >> %q", name, f.logPath),
	}
}

func (f *stageFixture) loggedPlotters(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func TestStage_RunsPlottersInOrder(t *testing.T) {
	f := newStageFixture(t)
	f.writeTerminal(t, "pln", 0, "0,2;0,02;0,05;5000;1,0;0\n0,4;0,03;0,06;5000;1,0;0\n")
	f.writeTerminal(t, "eur", 0, "0,3;0,02;0,05;5000;1,0;0\n0,5;0,03;0,06;5000;1,0;0\n")

	stage := &Stage{
		Layout:  f.layout,
		Regimes: []string{"pln", "eur"},
		Levels:  []int{0},
		Plotters: []Plotter{
			f.plotter("phase"),
			f.plotter("heatmap"),
			f.plotter("welfare"),
		},
		WorkDir: f.workDir,
	}
	require.NoError(t, stage.Run(context.Background()))

	assert.Equal(t, []string{"phase", "heatmap", "welfare"}, f.loggedPlotters(t))

	sweep, err := os.ReadFile(filepath.Join(f.layout.FiguresDir, SweepSummaryName))
	require.NoError(t, err)
	assert.Contains(t, string(sweep), "critical point (pln)")

	welfare, err := os.ReadFile(filepath.Join(f.layout.FiguresDir, WelfareSummaryName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(welfare)), "\n")
	// Header plus one row per (regime, level) with data.
	require.Len(t, lines, 3)
	assert.Equal(t, "Regime;Level;RealConsPc_mean;RealConsPc_std;Gini_mean;Gini_std", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "pln;0;"))
	assert.True(t, strings.HasPrefix(lines[2], "eur;0;"))
	// Engine dialect: decimal commas, so no dots anywhere.
	assert.NotContains(t, string(welfare), ".")
}

func TestStage_FailFastOnPlotterExit(t *testing.T) {
	f := newStageFixture(t)
	f.writeTerminal(t, "pln", 0, "0,2;0,02;0,05;5000;1,0;0\n")
	f.writeTerminal(t, "eur", 0, "0,3;0,02;0,05;5000;1,0;0\n")

	stage := &Stage{
		Layout:  f.layout,
		Regimes: []string{"pln", "eur"},
		Levels:  []int{0},
		Plotters: []Plotter{
			f.plotter("first"),
			{Name: "broken", Command: "echo boom >&2; exit 3"},
			f.plotter("never"),
		},
		WorkDir: f.workDir,
	}
	err := stage.Run(context.Background())
	require.Error(t, err)

	var pfe *PlotterFailureError
	require.True(t, errors.As(err, &pfe))
	assert.Equal(t, "broken", pfe.Name)
	assert.Equal(t, 3, pfe.ExitCode)
	assert.Contains(t, string(pfe.Stderr), "boom")

	// The plotter after the failure never ran.
	assert.Equal(t, []string{"first"}, f.loggedPlotters(t))
}

func TestStage_MissingTablesExcludedNotFatal(t *testing.T) {
	f := newStageFixture(t)
	// Only one of the requested levels has artifacts.
	f.writeTerminal(t, "pln", 250, "0,2;0,02;0,05;5000;1,0;250\n")
	f.writeTerminal(t, "eur", 250, "0,3;0,02;0,05;5000;1,0;250\n")

	stage := &Stage{
		Layout:  f.layout,
		Regimes: []string{"pln", "eur"},
		Levels:  []int{0, 250, 500},
		WorkDir: f.workDir,
	}
	require.NoError(t, stage.Run(context.Background()))

	welfare, err := os.ReadFile(filepath.Join(f.layout.FiguresDir, WelfareSummaryName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(welfare)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "pln;250;"))
	assert.True(t, strings.HasPrefix(lines[2], "eur;250;"))
}

func TestStage_SingleRegimeSkipsSummaries(t *testing.T) {
	f := newStageFixture(t)
	stage := &Stage{
		Layout:   f.layout,
		Regimes:  []string{"pln"},
		Levels:   []int{0},
		Plotters: []Plotter{f.plotter("solo")},
		WorkDir:  f.workDir,
	}
	require.NoError(t, stage.Run(context.Background()))

	assert.Equal(t, []string{"solo"}, f.loggedPlotters(t))
	_, err := os.Stat(filepath.Join(f.layout.FiguresDir, SweepSummaryName))
	assert.True(t, os.IsNotExist(err))
}

func TestStage_ContextCancellation(t *testing.T) {
	f := newStageFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := &Stage{
		Layout:   f.layout,
		Regimes:  []string{"pln"},
		Levels:   []int{0},
		Plotters: []Plotter{f.plotter("unreached")},
		WorkDir:  f.workDir,
	}
	err := stage.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.loggedPlotters(t))
}
