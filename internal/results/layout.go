// Package results owns the on-disk layout of generated artifacts: the
// regime-partitioned CSV tree and the flat figures directory. File existence
// at a conventional path is the only persistence contract.
package results

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout describes where generated artifacts live.
type Layout struct {
	// ResultsDir holds one subdirectory per regime, each a flat collection
	// of CSV pairs named by prefix.
	ResultsDir string

	// FiguresDir holds all rendered figures, flat.
	FiguresDir string
}

// PartitionDir is the results directory for one regime tag.
func (l Layout) PartitionDir(regime string) string {
	return filepath.Join(l.ResultsDir, regime)
}

// TerminalPath is the conventional location of a pair's terminal-state table.
func (l Layout) TerminalPath(regime string, level int) string {
	return filepath.Join(l.PartitionDir(regime), fmt.Sprintf("sweep_%s_%d_terminal.csv", regime, level))
}

// TimeseriesPath is the conventional location of a pair's time-series table.
func (l Layout) TimeseriesPath(regime string, level int) string {
	return filepath.Join(l.PartitionDir(regime), fmt.Sprintf("sweep_%s_%d_timeseries.csv", regime, level))
}

// EnsurePartitions creates the results partitions and the figures directory.
func (l Layout) EnsurePartitions(regimes []string) error {
	for _, r := range regimes {
		if err := os.MkdirAll(l.PartitionDir(r), 0o755); err != nil {
			return fmt.Errorf("ensure partition %q: %w", r, err)
		}
	}
	if err := os.MkdirAll(l.FiguresDir, 0o755); err != nil {
		return fmt.Errorf("ensure figures dir: %w", err)
	}
	return nil
}

// Generated artifact patterns removed by Clean.
var cleanPatterns = []string{
	filepath.Join("*", "*.csv"), // results partitions
}

var figurePatterns = []string{"*.png", "*.svg", "*.pdf"}

// Clean deletes all generated CSVs under the results partitions and all
// figure files. It is idempotent: absent directories or zero matches are not
// errors, and a second Clean is a no-op.
func (l Layout) Clean() (removed int, err error) {
	var targets []string
	for _, pat := range cleanPatterns {
		matches, err := filepath.Glob(filepath.Join(l.ResultsDir, pat))
		if err != nil {
			return removed, fmt.Errorf("glob results: %w", err)
		}
		targets = append(targets, matches...)
	}
	for _, pat := range figurePatterns {
		matches, err := filepath.Glob(filepath.Join(l.FiguresDir, pat))
		if err != nil {
			return removed, fmt.Errorf("glob figures: %w", err)
		}
		targets = append(targets, matches...)
	}
	// The textual summaries the figures stage writes are generated too.
	for _, name := range []string{"sweep_summary.txt", "welfare_summary.csv"} {
		path := filepath.Join(l.FiguresDir, name)
		if _, statErr := os.Stat(path); statErr == nil {
			targets = append(targets, path)
		}
	}

	for _, path := range targets {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("remove %q: %w", path, err)
		}
		removed++
	}
	return removed, nil
}
