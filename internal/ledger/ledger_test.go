package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regimelab/internal/sweep"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func completedRec(regime string, level int) sweep.PairRecord {
	p := sweep.Pair{Regime: regime, Level: level}
	return sweep.PairRecord{
		Pair:           p,
		Prefix:         p.Prefix(),
		Status:         sweep.PairCompleted,
		Attempts:       1,
		Duration:       1500 * time.Millisecond,
		TerminalPath:   "results/" + regime + "/" + p.Prefix() + "_terminal.csv",
		TimeseriesPath: "results/" + regime + "/" + p.Prefix() + "_timeseries.csv",
	}
}

func TestLedger_RunLifecycle(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.StartRun("run-1", "fp-a", 30))
	require.NoError(t, l.RecordPair("run-1", completedRec("pln", 0)))
	require.NoError(t, l.RecordPair("run-1", sweep.PairRecord{
		Pair:     sweep.Pair{Regime: "pln", Level: 250},
		Prefix:   "sweep_pln_250",
		Status:   sweep.PairFailed,
		ExitCode: 3,
		Attempts: 1,
	}))
	require.NoError(t, l.FinishRun("run-1", sweep.RunFailed))

	runs, err := l.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Equal(t, sweep.RunFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].Completed)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 0, runs[0].Skipped)
	assert.NotEmpty(t, runs[0].FinishedAt)
}

func TestLedger_FinishUnknownRun(t *testing.T) {
	l := openTestLedger(t)
	assert.Error(t, l.FinishRun("nope", sweep.RunCompleted))
}

func TestLedger_CompletedPairsScopedToFingerprint(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.StartRun("run-1", "fp-a", 3))
	require.NoError(t, l.RecordPair("run-1", completedRec("pln", 0)))
	require.NoError(t, l.FinishRun("run-1", sweep.RunFailed))

	require.NoError(t, l.StartRun("run-2", "fp-b", 5))
	require.NoError(t, l.RecordPair("run-2", completedRec("eur", 0)))
	require.NoError(t, l.FinishRun("run-2", sweep.RunCompleted))

	got, err := l.CompletedPairs("fp-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	rec, ok := got["sweep_pln_0"]
	require.True(t, ok)
	assert.Equal(t, sweep.Pair{Regime: "pln", Level: 0}, rec.Pair)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration)

	// A different plan's completions are invisible.
	_, crossTalk := got["sweep_eur_0"]
	assert.False(t, crossTalk)
}

func TestLedger_CompletedPairsAccumulateAcrossRuns(t *testing.T) {
	l := openTestLedger(t)

	// A failed run completed two pairs, then a resume run completed one more
	// and skipped the first two.
	require.NoError(t, l.StartRun("run-1", "fp-a", 3))
	require.NoError(t, l.RecordPair("run-1", completedRec("pln", 0)))
	require.NoError(t, l.RecordPair("run-1", completedRec("pln", 250)))
	require.NoError(t, l.FinishRun("run-1", sweep.RunFailed))

	require.NoError(t, l.StartRun("run-2", "fp-a", 3))
	skipped := completedRec("pln", 0)
	skipped.Status = sweep.PairSkipped
	require.NoError(t, l.RecordPair("run-2", skipped))
	require.NoError(t, l.RecordPair("run-2", completedRec("eur", 0)))
	require.NoError(t, l.FinishRun("run-2", sweep.RunCompleted))

	got, err := l.CompletedPairs("fp-a")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, prefix := range []string{"sweep_pln_0", "sweep_pln_250", "sweep_eur_0"} {
		_, ok := got[prefix]
		assert.True(t, ok, "missing %s", prefix)
	}

	// Failed pairs never count as resumable.
	require.NoError(t, l.StartRun("run-3", "fp-a", 3))
	require.NoError(t, l.RecordPair("run-3", sweep.PairRecord{
		Pair: sweep.Pair{Regime: "eur", Level: 250}, Prefix: "sweep_eur_250",
		Status: sweep.PairFailed, ExitCode: 1, Attempts: 1,
	}))
	got, err = l.CompletedPairs("fp-a")
	require.NoError(t, err)
	_, ok := got["sweep_eur_250"]
	assert.False(t, ok)
}

func TestLedger_RunsOrderedMostRecentFirst(t *testing.T) {
	l := openTestLedger(t)
	require.NoError(t, l.StartRun("run-1", "fp-a", 3))
	require.NoError(t, l.FinishRun("run-1", sweep.RunCompleted))
	require.NoError(t, l.StartRun("run-2", "fp-a", 3))

	// started_at has second precision; run_id breaks the tie.

	runs, err := l.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, sweep.RunRunning, runs[0].Status)
}
