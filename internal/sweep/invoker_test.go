package sweep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdir moves the process into dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// The reference configuration names both the binary and the workdir relative
// to the harness root ("simulations/engine" inside "simulations"); the
// invoker must not resolve the binary against the workdir.
func TestInvoker_RelativeBinaryResolvedAgainstHarnessRoot(t *testing.T) {
	root := t.TempDir()
	simDir := filepath.Join(root, "simulations")
	if err := os.MkdirAll(simDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	script := strings.Replace(fakeEngineScript, "%s", "", 1)
	if err := os.WriteFile(filepath.Join(simDir, "engine"), []byte(script), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	chdir(t, root)

	inv := NewInvoker("simulations/engine", "simulations")
	res, err := inv.Invoke(context.Background(), Pair{Regime: "pln", Level: 0}, 3)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}

	// Outputs land in the engine's own output dir, under the workdir.
	for _, name := range []string{"sweep_pln_0_terminal.csv", "sweep_pln_0_timeseries.csv"} {
		if _, err := os.Stat(filepath.Join(simDir, "output", name)); err != nil {
			t.Errorf("missing engine output %s: %v", name, err)
		}
	}
}

func TestInvoker_AbsoluteBinaryUnchanged(t *testing.T) {
	workDir := t.TempDir()
	bin := filepath.Join(workDir, "engine.sh")
	script := strings.Replace(fakeEngineScript, "%s", "", 1)
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write engine: %v", err)
	}

	inv := NewInvoker(bin, workDir)
	res, err := inv.Invoke(context.Background(), Pair{Regime: "eur", Level: 250}, 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", res.ExitCode)
	}
}
