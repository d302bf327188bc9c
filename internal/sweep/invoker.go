package sweep

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
	"time"
)

// InvocationResult captures one engine run.
type InvocationResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Invoker runs the external simulation engine.
//
// Engine contract: four positional arguments — level, seed count, output
// prefix, regime tag — and on success two CSVs written to its fixed output
// directory with exit status zero. The invoker blocks until the engine
// exits; there is no per-run timeout, only context cancellation.
type Invoker struct {
	// Binary is the engine executable.
	Binary string

	// WorkDir is the engine's root, used as the subprocess working directory.
	WorkDir string
}

// NewInvoker creates an Invoker for the given engine binary and root.
func NewInvoker(binary, workDir string) *Invoker {
	return &Invoker{Binary: binary, WorkDir: workDir}
}

// Invoke runs the engine once for the given pair and blocks until it exits.
//
// A non-zero engine exit is not an error here; it is reported through
// InvocationResult.ExitCode so the driver can apply its failure policy.
// A non-nil error means the process could not be run at all.
func (inv *Invoker) Invoke(ctx context.Context, pair Pair, seedCount int) (*InvocationResult, error) {
	if inv.Binary == "" {
		return nil, fmt.Errorf("engine binary is not configured")
	}
	if seedCount <= 0 {
		return nil, fmt.Errorf("seed count must be positive (got %d)", seedCount)
	}

	// A relative binary path is relative to the harness working directory,
	// not to cmd.Dir; exec would otherwise look it up inside the engine's
	// workdir. Bare names keep their PATH lookup.
	bin := inv.Binary
	if !filepath.IsAbs(bin) && strings.ContainsRune(bin, os.PathSeparator) {
		abs, err := filepath.Abs(bin)
		if err != nil {
			return nil, fmt.Errorf("resolving engine path %q: %w", bin, err)
		}
		bin = abs
	}

	cmd := exec.CommandContext(ctx, bin,
		strconv.Itoa(pair.Level),
		strconv.Itoa(seedCount),
		pair.Prefix(),
		pair.Regime,
	)
	cmd.Dir = inv.WorkDir

	// Run the engine in its own process group so cancellation can kill the
	// whole tree, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting engine %q: %w", inv.Binary, err)
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
		return nil, fmt.Errorf("engine invocation cancelled: %w", ctx.Err())
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("running engine %q: %w", inv.Binary, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &InvocationResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}
