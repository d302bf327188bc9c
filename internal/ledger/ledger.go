// Package ledger persists sweep runs and per-pair outcomes in SQLite.
//
// The ledger is the harness's memory across invocations: `status` reads it,
// and `simulate --resume` uses it to decide which pairs of an identical plan
// are already complete.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"regimelab/internal/sweep"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	plan_fingerprint TEXT NOT NULL,
	seed_count       INTEGER NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT,
	status           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pair_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	regime          TEXT NOT NULL,
	level           INTEGER NOT NULL,
	prefix          TEXT NOT NULL,
	status          TEXT NOT NULL,
	exit_code       INTEGER NOT NULL,
	attempts        INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	terminal_path   TEXT,
	timeseries_path TEXT,
	recorded_at     TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_pair_runs_run ON pair_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_pair_runs_prefix ON pair_runs(prefix, status);
`

// Ledger is a SQLite-backed sweep run store.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger database and applies the
// schema.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun records a new sweep run in the "running" state.
func (l *Ledger) StartRun(runID, fingerprint string, seedCount int) error {
	_, err := l.db.Exec(
		`INSERT INTO runs (run_id, plan_fingerprint, seed_count, started_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, fingerprint, seedCount, time.Now().UTC().Format(time.RFC3339), sweep.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the run's final status and finish time.
func (l *Ledger) FinishRun(runID, status string) error {
	res, err := l.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("unknown run %q", runID)
	}
	return nil
}

// RecordPair appends one pair outcome to the run.
func (l *Ledger) RecordPair(runID string, rec sweep.PairRecord) error {
	_, err := l.db.Exec(
		`INSERT INTO pair_runs
		 (run_id, regime, level, prefix, status, exit_code, attempts, duration_ms,
		  terminal_path, timeseries_path, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Pair.Regime, rec.Pair.Level, rec.Prefix, rec.Status,
		rec.ExitCode, rec.Attempts, rec.Duration.Milliseconds(),
		rec.TerminalPath, rec.TimeseriesPath,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert pair run: %w", err)
	}
	return nil
}

// CompletedPairs returns, keyed by prefix, the most recent completed outcome
// of every pair belonging to any run of the given plan fingerprint. Skipped
// records count as completed for resume purposes: they point at artifacts
// that verified on disk at the time.
func (l *Ledger) CompletedPairs(fingerprint string) (map[string]sweep.PairRecord, error) {
	rows, err := l.db.Query(
		`SELECT p.regime, p.level, p.prefix, p.status, p.exit_code, p.attempts,
		        p.duration_ms, p.terminal_path, p.timeseries_path
		 FROM pair_runs p
		 JOIN runs r ON r.run_id = p.run_id
		 WHERE r.plan_fingerprint = ? AND p.status IN (?, ?)
		 ORDER BY p.id ASC`,
		fingerprint, sweep.PairCompleted, sweep.PairSkipped,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed pairs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]sweep.PairRecord)
	for rows.Next() {
		var rec sweep.PairRecord
		var durationMS int64
		if err := rows.Scan(
			&rec.Pair.Regime, &rec.Pair.Level, &rec.Prefix, &rec.Status,
			&rec.ExitCode, &rec.Attempts, &durationMS,
			&rec.TerminalPath, &rec.TimeseriesPath,
		); err != nil {
			return nil, fmt.Errorf("scan pair run: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Status = sweep.PairCompleted
		// Later rows win: the query is ordered by insertion.
		out[rec.Prefix] = rec
	}
	return out, rows.Err()
}

// RunSummary is one row of the status listing.
type RunSummary struct {
	RunID       string
	Fingerprint string
	SeedCount   int
	StartedAt   string
	FinishedAt  string
	Status      string
	Completed   int
	Failed      int
	Skipped     int
}

// Runs lists all recorded runs, most recent first, with pair counts.
func (l *Ledger) Runs() ([]RunSummary, error) {
	rows, err := l.db.Query(
		`SELECT r.run_id, r.plan_fingerprint, r.seed_count, r.started_at,
		        COALESCE(r.finished_at, ''), r.status,
		        COALESCE(SUM(CASE WHEN p.status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN p.status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN p.status = ? THEN 1 ELSE 0 END), 0)
		 FROM runs r
		 LEFT JOIN pair_runs p ON p.run_id = r.run_id
		 GROUP BY r.run_id
		 ORDER BY r.started_at DESC, r.run_id DESC`,
		sweep.PairCompleted, sweep.PairFailed, sweep.PairSkipped,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(
			&s.RunID, &s.Fingerprint, &s.SeedCount, &s.StartedAt,
			&s.FinishedAt, &s.Status, &s.Completed, &s.Failed, &s.Skipped,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
