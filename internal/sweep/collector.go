package sweep

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// The two artifact kinds the engine contractually produces per run.
const (
	TerminalSuffix   = "_terminal.csv"
	TimeseriesSuffix = "_timeseries.csv"
)

// CollectedPair holds the relocated artifact paths for one completed pair.
type CollectedPair struct {
	TerminalPath   string
	TimeseriesPath string
}

// MissingOutputError reports an output file the engine was contracted to
// produce but did not.
type MissingOutputError struct {
	Pair Pair
	Path string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("run %s: expected engine output missing: %s", e.Pair, e.Path)
}

// Collector relocates engine outputs into the regime-partitioned results
// tree. Files are moved, not copied: after a successful Collect no file with
// the pair's prefix remains in the engine output directory.
type Collector struct {
	// EngineOutDir is the fixed directory the engine writes into.
	EngineOutDir string

	// ResultsDir is the root of the partitioned results tree.
	ResultsDir string
}

// NewCollector creates a Collector.
func NewCollector(engineOutDir, resultsDir string) *Collector {
	return &Collector{EngineOutDir: engineOutDir, ResultsDir: resultsDir}
}

// PartitionDir is the results directory for one regime.
func (c *Collector) PartitionDir(regime string) string {
	return filepath.Join(c.ResultsDir, regime)
}

// DestPaths returns where a pair's artifacts live after relocation.
func (c *Collector) DestPaths(pair Pair) CollectedPair {
	dir := c.PartitionDir(pair.Regime)
	prefix := pair.Prefix()
	return CollectedPair{
		TerminalPath:   filepath.Join(dir, prefix+TerminalSuffix),
		TimeseriesPath: filepath.Join(dir, prefix+TimeseriesSuffix),
	}
}

// Collect moves the pair's two output files from the engine output directory
// into results/<regime>/.
//
// Both files are checked for existence before anything is moved, so a run
// that produced only one of the two leaves the engine output directory
// untouched and fails with MissingOutputError.
func (c *Collector) Collect(pair Pair) (*CollectedPair, error) {
	prefix := pair.Prefix()
	srcTerminal := filepath.Join(c.EngineOutDir, prefix+TerminalSuffix)
	srcTimeseries := filepath.Join(c.EngineOutDir, prefix+TimeseriesSuffix)

	for _, src := range []string{srcTerminal, srcTimeseries} {
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				return nil, &MissingOutputError{Pair: pair, Path: src}
			}
			return nil, fmt.Errorf("stat engine output %q: %w", src, err)
		}
	}

	dest := c.DestPaths(pair)
	if err := os.MkdirAll(c.PartitionDir(pair.Regime), 0o755); err != nil {
		return nil, fmt.Errorf("ensure partition dir: %w", err)
	}

	if err := moveFile(srcTerminal, dest.TerminalPath); err != nil {
		return nil, fmt.Errorf("relocating %s: %w", filepath.Base(srcTerminal), err)
	}
	if err := moveFile(srcTimeseries, dest.TimeseriesPath); err != nil {
		return nil, fmt.Errorf("relocating %s: %w", filepath.Base(srcTimeseries), err)
	}

	return &dest, nil
}

// Verify reports whether a pair's relocated artifacts are present and
// non-empty. Used to validate ledger checkpoints before a pair is skipped on
// resume.
func (c *Collector) Verify(pair Pair) bool {
	dest := c.DestPaths(pair)
	for _, path := range []string{dest.TerminalPath, dest.TimeseriesPath} {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() == 0 {
			return false
		}
	}
	return true
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// rename crosses filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
