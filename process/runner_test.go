package process_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/process"
	"github.com/kbukum/dwiflow/resilience"
)

// countingCommand appends a line to a file on every attempt and exits with code.
func countingCommand(t *testing.T, code string) (process.Command, func() int) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attempts")
	cmd := process.Command{
		Name:   "flaky",
		Binary: "sh",
		Args:   []string{"-c", "echo x >> " + path + "; exit " + code},
	}
	return cmd, func() int {
		b, err := os.ReadFile(path)
		if err != nil {
			return 0
		}
		return strings.Count(string(b), "x")
	}
}

func TestRunner_AppliesOptions(t *testing.T) {
	dir := t.TempDir()
	runner := process.NewRunner(process.Options{
		WorkDir: dir,
		Env:     []string{"STEP_VAR=base"},
	})

	result, err := runner.Run(context.Background(), process.Command{
		Binary: "sh",
		Args:   []string{"-c", "pwd; echo $STEP_VAR $CMD_VAR"},
		Env:    []string{"CMD_VAR=cmd"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(result.Stdout)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", result.Stdout)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	if gotDir != wantDir {
		t.Errorf("expected work dir %s, got %s", wantDir, gotDir)
	}
	if lines[1] != "base cmd" {
		t.Errorf("expected merged env, got %q", lines[1])
	}
}

func TestRunner_NoRetryByDefault(t *testing.T) {
	cmd, attempts := countingCommand(t, "1")
	_, err := process.NewRunner(process.DefaultOptions()).Run(context.Background(), cmd)
	if !errors.HasCode(err, errors.ErrCodeProcessFailed) {
		t.Fatalf("expected PROCESS_FAILED, got %v", err)
	}
	if got := attempts(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestRunner_RetriesFromOptions(t *testing.T) {
	cmd, attempts := countingCommand(t, "1")
	runner := process.NewRunner(process.Options{RetryAttempts: 3, RetryBackoff: time.Millisecond})

	_, err := runner.Run(context.Background(), cmd)
	if !errors.HasCode(err, errors.ErrCodeProcessFailed) {
		t.Fatalf("expected PROCESS_FAILED after retries, got %v", err)
	}
	if got := attempts(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRunner_WithRetryOverrides(t *testing.T) {
	cmd, attempts := countingCommand(t, "1")
	runner := process.NewRunner(process.Options{RetryAttempts: 5}, process.WithRetry(resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	}))

	if _, err := runner.Run(context.Background(), cmd); err == nil {
		t.Fatal("expected error from failing command")
	}
	if got := attempts(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestRunner_TimeoutPerAttempt(t *testing.T) {
	runner := process.NewRunner(process.Options{Timeout: 100 * time.Millisecond, GracePeriod: 100 * time.Millisecond})

	start := time.Now()
	_, err := runner.Run(context.Background(), process.Command{Binary: "sleep", Args: []string{"10"}})
	if !errors.HasCode(err, errors.ErrCodeTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestRunner_CircuitBreakerTrips(t *testing.T) {
	cmd, attempts := countingCommand(t, "1")
	runner := process.NewRunner(process.Options{}, process.WithCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "flaky",
		MaxFailures: 2,
		Timeout:     time.Minute,
	}))

	for i := 0; i < 2; i++ {
		if _, err := runner.Run(context.Background(), cmd); !errors.HasCode(err, errors.ErrCodeProcessFailed) {
			t.Fatalf("attempt %d: expected PROCESS_FAILED, got %v", i, err)
		}
	}

	_, err := runner.Run(context.Background(), cmd)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if !errors.IsRecoverable(err) {
		t.Error("expected a rejected call to be recoverable")
	}
	if got := attempts(); got != 2 {
		t.Errorf("expected the rejected call not to run, got %d runs", got)
	}
}

func TestRunner_Options(t *testing.T) {
	opts := process.Options{WorkDir: "/data", RetryAttempts: 2}
	if got := process.NewRunner(opts).Options(); got.WorkDir != "/data" || got.RetryAttempts != 2 {
		t.Errorf("unexpected options %+v", got)
	}
}
