package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pair run statuses as persisted in the ledger and manifest.
const (
	PairCompleted = "completed"
	PairFailed    = "failed"
	PairSkipped   = "skipped"
)

// Sweep run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunAborted   = "aborted"
)

// PairRecord is the durable outcome of one (regime, level) pair.
type PairRecord struct {
	Pair           Pair
	Prefix         string
	Status         string
	ExitCode       int
	Attempts       int
	Duration       time.Duration
	TerminalPath   string
	TimeseriesPath string
}

// RunRecorder persists sweep runs and pair outcomes. The SQLite ledger
// satisfies it; a nil recorder disables persistence.
type RunRecorder interface {
	StartRun(runID, fingerprint string, seedCount int) error
	RecordPair(runID string, rec PairRecord) error
	FinishRun(runID, status string) error
	CompletedPairs(fingerprint string) (map[string]PairRecord, error)
}

// Journal receives the ordered pair outcomes for the run manifest.
type Journal interface {
	Begin(runID, fingerprint string, seedCount int) error
	Append(rec PairRecord) error
	Finalize(status string) error
}

// RetryPolicy controls per-pair retries on non-zero engine exits. The zero
// value is the default policy: no retries, first failure aborts the sweep.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// EngineFailureError is a fatal engine exit that aborted the sweep.
type EngineFailureError struct {
	Pair     Pair
	ExitCode int
	Attempts int
	Stderr   []byte
}

func (e *EngineFailureError) Error() string {
	return fmt.Sprintf("engine failed for run %s: exit code %d after %d attempt(s)",
		e.Pair, e.ExitCode, e.Attempts)
}

// SweepResult summarizes a finished (or aborted) sweep.
type SweepResult struct {
	RunID     string
	Completed int
	Skipped   int
	Records   []PairRecord
}

// Driver executes the sweep plan strictly sequentially.
//
// Each pair is one blocking engine invocation followed by relocation of its
// two output files. Any engine failure, missing contracted output, or
// relocation error aborts the whole sweep; pairs already completed keep their
// relocated outputs.
type Driver struct {
	Plan      *Plan
	Invoker   *Invoker
	Collector *Collector

	// Recorder and Journal are optional; when nil the sweep runs without
	// persistence.
	Recorder RunRecorder
	Journal  Journal

	Retry RetryPolicy

	// Resume skips pairs the ledger records as completed for an identical
	// plan, provided their relocated files still verify on disk.
	Resume bool

	Log *zap.Logger
}

// Run executes the sweep and returns once every pair has completed, or as
// soon as one pair fails.
func (d *Driver) Run(ctx context.Context) (*SweepResult, error) {
	if d.Plan == nil || d.Invoker == nil || d.Collector == nil {
		return nil, fmt.Errorf("driver requires a plan, an invoker, and a collector")
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	runID := uuid.NewString()
	fingerprint := d.Plan.Fingerprint()

	if d.Recorder != nil {
		if err := d.Recorder.StartRun(runID, fingerprint, d.Plan.SeedCount()); err != nil {
			return nil, fmt.Errorf("recording run start: %w", err)
		}
	}
	if d.Journal != nil {
		if err := d.Journal.Begin(runID, fingerprint, d.Plan.SeedCount()); err != nil {
			return nil, fmt.Errorf("starting manifest: %w", err)
		}
	}

	var resumable map[string]PairRecord
	if d.Resume && d.Recorder != nil {
		prev, err := d.Recorder.CompletedPairs(fingerprint)
		if err != nil {
			return nil, fmt.Errorf("loading resumable pairs: %w", err)
		}
		resumable = prev
	}

	result := &SweepResult{RunID: runID}
	log.Info("sweep started",
		zap.String("run_id", runID),
		zap.Int("pairs", d.Plan.Size()),
		zap.Int("seed_count", d.Plan.SeedCount()),
		zap.Bool("resume", d.Resume))

	for _, pair := range d.Plan.Pairs() {
		if err := ctx.Err(); err != nil {
			d.finish(runID, RunAborted)
			return result, fmt.Errorf("sweep aborted: %w", err)
		}

		if prev, ok := resumable[pair.Prefix()]; ok {
			if d.Collector.Verify(pair) {
				rec := prev
				rec.Status = PairSkipped
				d.record(runID, rec, log)
				result.Skipped++
				result.Records = append(result.Records, rec)
				log.Info("pair skipped (already complete)",
					zap.String("regime", pair.Regime), zap.Int("level", pair.Level))
				continue
			}
			// Ledger says complete but files are gone or empty; run it again.
			log.Warn("resume checkpoint failed verification, re-running pair",
				zap.String("regime", pair.Regime), zap.Int("level", pair.Level))
		}

		rec, err := d.runPair(ctx, runID, pair, log)
		if rec != nil {
			result.Records = append(result.Records, *rec)
		}
		if err != nil {
			// A cancellation that interrupted the pair is an abort, not an
			// engine failure.
			status := RunFailed
			if ctx.Err() != nil {
				status = RunAborted
			}
			d.finish(runID, status)
			return result, err
		}
		result.Completed++
	}

	d.finish(runID, RunCompleted)
	log.Info("sweep completed",
		zap.String("run_id", runID),
		zap.Int("completed", result.Completed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// runPair invokes the engine for one pair, retrying non-zero exits up to the
// retry policy, then relocates the outputs. Missing contracted outputs are
// never retried: the engine exited zero, so the contract itself is broken.
func (d *Driver) runPair(ctx context.Context, runID string, pair Pair, log *zap.Logger) (*PairRecord, error) {
	maxAttempts := d.Retry.Attempts + 1

	var last *InvocationResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := d.Invoker.Invoke(ctx, pair, d.Plan.SeedCount())
		if err != nil {
			rec := d.failureRecord(pair, -1, attempt)
			d.record(runID, rec, log)
			return &rec, fmt.Errorf("invoking engine for %s: %w", pair, err)
		}
		last = res

		if res.ExitCode == 0 {
			collected, err := d.Collector.Collect(pair)
			if err != nil {
				rec := d.failureRecord(pair, res.ExitCode, attempt)
				d.record(runID, rec, log)
				return &rec, err
			}
			rec := PairRecord{
				Pair:           pair,
				Prefix:         pair.Prefix(),
				Status:         PairCompleted,
				ExitCode:       0,
				Attempts:       attempt,
				Duration:       res.Duration,
				TerminalPath:   collected.TerminalPath,
				TimeseriesPath: collected.TimeseriesPath,
			}
			d.record(runID, rec, log)
			log.Info("pair completed",
				zap.String("regime", pair.Regime),
				zap.Int("level", pair.Level),
				zap.String("prefix", rec.Prefix),
				zap.Duration("duration", res.Duration),
				zap.Int("attempts", attempt))
			return &rec, nil
		}

		if attempt < maxAttempts {
			log.Warn("engine exited non-zero, retrying",
				zap.String("regime", pair.Regime),
				zap.Int("level", pair.Level),
				zap.Int("exit_code", res.ExitCode),
				zap.Int("attempt", attempt))
			if err := sleepCtx(ctx, d.Retry.Backoff); err != nil {
				rec := d.failureRecord(pair, res.ExitCode, attempt)
				d.record(runID, rec, log)
				return &rec, fmt.Errorf("sweep aborted during retry backoff: %w", err)
			}
		}
	}

	rec := d.failureRecord(pair, last.ExitCode, maxAttempts)
	d.record(runID, rec, log)
	log.Error("pair failed, aborting sweep",
		zap.String("regime", pair.Regime),
		zap.Int("level", pair.Level),
		zap.Int("exit_code", last.ExitCode))
	return &rec, &EngineFailureError{
		Pair:     pair,
		ExitCode: last.ExitCode,
		Attempts: maxAttempts,
		Stderr:   last.Stderr,
	}
}

func (d *Driver) failureRecord(pair Pair, exitCode, attempts int) PairRecord {
	return PairRecord{
		Pair:     pair,
		Prefix:   pair.Prefix(),
		Status:   PairFailed,
		ExitCode: exitCode,
		Attempts: attempts,
	}
}

// record persists a pair outcome to the ledger and manifest. Persistence
// failures are logged, not fatal: losing a ledger row must not kill a
// multi-hour sweep.
func (d *Driver) record(runID string, rec PairRecord, log *zap.Logger) {
	if d.Recorder != nil {
		if err := d.Recorder.RecordPair(runID, rec); err != nil {
			log.Warn("ledger write failed", zap.Error(err))
		}
	}
	if d.Journal != nil {
		if err := d.Journal.Append(rec); err != nil {
			log.Warn("manifest write failed", zap.Error(err))
		}
	}
}

func (d *Driver) finish(runID, status string) {
	if d.Recorder != nil {
		_ = d.Recorder.FinishRun(runID, status)
	}
	if d.Journal != nil {
		_ = d.Journal.Finalize(status)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
