package results

import (
	"os"
	"path/filepath"
	"testing"
)

func newLayout(t *testing.T) Layout {
	t.Helper()
	tmp := t.TempDir()
	return Layout{
		ResultsDir: filepath.Join(tmp, "results"),
		FiguresDir: filepath.Join(tmp, "figures"),
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestPaths(t *testing.T) {
	l := Layout{ResultsDir: "res", FiguresDir: "fig"}
	if got := l.TerminalPath("pln", 2000); got != filepath.Join("res", "pln", "sweep_pln_2000_terminal.csv") {
		t.Errorf("TerminalPath = %q", got)
	}
	if got := l.TimeseriesPath("eur", 0); got != filepath.Join("res", "eur", "sweep_eur_0_timeseries.csv") {
		t.Errorf("TimeseriesPath = %q", got)
	}
}

func TestEnsurePartitions(t *testing.T) {
	l := newLayout(t)
	if err := l.EnsurePartitions([]string{"pln", "eur"}); err != nil {
		t.Fatalf("EnsurePartitions: %v", err)
	}
	for _, dir := range []string{l.PartitionDir("pln"), l.PartitionDir("eur"), l.FiguresDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing dir %s: %v", dir, err)
		}
	}
}

func TestClean_RemovesGeneratedArtifactsOnly(t *testing.T) {
	l := newLayout(t)
	touch(t, filepath.Join(l.PartitionDir("pln"), "sweep_pln_0_terminal.csv"))
	touch(t, filepath.Join(l.PartitionDir("pln"), "sweep_pln_0_timeseries.csv"))
	touch(t, filepath.Join(l.PartitionDir("eur"), "sweep_eur_0_terminal.csv"))
	touch(t, filepath.Join(l.FiguresDir, "p02_bifurcation_comparison.png"))
	touch(t, filepath.Join(l.FiguresDir, "sweep_summary.txt"))
	// Not generated by the harness; must survive.
	touch(t, filepath.Join(l.FiguresDir, "notes.md"))
	touch(t, filepath.Join(l.ResultsDir, "README"))

	removed, err := l.Clean()
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if removed != 5 {
		t.Errorf("removed = %d, want 5", removed)
	}

	for _, path := range []string{
		filepath.Join(l.PartitionDir("pln"), "sweep_pln_0_terminal.csv"),
		filepath.Join(l.FiguresDir, "p02_bifurcation_comparison.png"),
		filepath.Join(l.FiguresDir, "sweep_summary.txt"),
	} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s should be gone, stat err = %v", path, err)
		}
	}
	for _, path := range []string{
		filepath.Join(l.FiguresDir, "notes.md"),
		filepath.Join(l.ResultsDir, "README"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s should survive: %v", path, err)
		}
	}
}

func TestClean_Idempotent(t *testing.T) {
	l := newLayout(t)
	touch(t, filepath.Join(l.PartitionDir("pln"), "sweep_pln_0_terminal.csv"))

	if _, err := l.Clean(); err != nil {
		t.Fatalf("first Clean: %v", err)
	}
	removed, err := l.Clean()
	if err != nil {
		t.Fatalf("second Clean must not fail: %v", err)
	}
	if removed != 0 {
		t.Errorf("second Clean removed %d files, want 0", removed)
	}
}

func TestClean_MissingDirectories(t *testing.T) {
	l := Layout{
		ResultsDir: filepath.Join(t.TempDir(), "never-created"),
		FiguresDir: filepath.Join(t.TempDir(), "also-never-created"),
	}
	removed, err := l.Clean()
	if err != nil {
		t.Fatalf("Clean on missing dirs: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
