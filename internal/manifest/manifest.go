// Package manifest writes the human-inspectable JSON record of a sweep run.
//
// Unlike the ledger (queryable history across runs), the manifest describes a
// single run: the ordered pair outcomes with their artifact paths. It is
// rewritten atomically after every pair so that an interrupted sweep still
// leaves a readable manifest of everything that happened before the
// interruption.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"regimelab/internal/sweep"
)

// Entry is one pair outcome in run order.
type Entry struct {
	Regime         string `json:"regime"`
	Level          int    `json:"level"`
	Prefix         string `json:"prefix"`
	Status         string `json:"status"`
	ExitCode       int    `json:"exit_code"`
	Attempts       int    `json:"attempts"`
	DurationMS     int64  `json:"duration_ms"`
	TerminalPath   string `json:"terminal_path,omitempty"`
	TimeseriesPath string `json:"timeseries_path,omitempty"`
}

// Manifest is the serialized run record.
type Manifest struct {
	RunID           string    `json:"run_id"`
	PlanFingerprint string    `json:"plan_fingerprint"`
	SeedCount       int       `json:"seed_count"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Status          string    `json:"status"`
	Entries         []Entry   `json:"entries"`
}

// Recorder accumulates pair outcomes and persists the manifest after every
// append. It satisfies sweep.Journal.
type Recorder struct {
	path string
	m    Manifest
}

// NewRecorder creates a Recorder writing to the given path.
func NewRecorder(path string) (*Recorder, error) {
	if path == "" {
		return nil, errors.New("manifest path is required")
	}
	return &Recorder{path: path}, nil
}

// Begin initializes the manifest for a new run and writes it out.
func (r *Recorder) Begin(runID, fingerprint string, seedCount int) error {
	r.m = Manifest{
		RunID:           runID,
		PlanFingerprint: fingerprint,
		SeedCount:       seedCount,
		StartedAt:       time.Now().UTC(),
		Status:          sweep.RunRunning,
		Entries:         []Entry{},
	}
	return r.flush()
}

// Append records one pair outcome and rewrites the manifest.
func (r *Recorder) Append(rec sweep.PairRecord) error {
	if r.m.RunID == "" {
		return errors.New("manifest not begun")
	}
	r.m.Entries = append(r.m.Entries, Entry{
		Regime:         rec.Pair.Regime,
		Level:          rec.Pair.Level,
		Prefix:         rec.Prefix,
		Status:         rec.Status,
		ExitCode:       rec.ExitCode,
		Attempts:       rec.Attempts,
		DurationMS:     rec.Duration.Milliseconds(),
		TerminalPath:   rec.TerminalPath,
		TimeseriesPath: rec.TimeseriesPath,
	})
	return r.flush()
}

// Finalize stamps the run's terminal status and writes the manifest a last
// time.
func (r *Recorder) Finalize(status string) error {
	if r.m.RunID == "" {
		return errors.New("manifest not begun")
	}
	r.m.Status = status
	r.m.FinishedAt = time.Now().UTC()
	return r.flush()
}

func (r *Recorder) flush() error {
	data, err := json.MarshalIndent(r.m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest back, rejecting unknown fields and trailing junk.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m Manifest
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return nil, errors.New("invalid manifest: trailing content")
	}
	return &m, nil
}

// writeFileAtomic writes data to path via a synced temp file and rename, so
// readers never observe a torn manifest.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	closed := false
	committed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	closed = true
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
