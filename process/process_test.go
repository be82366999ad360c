package process_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/process"
	"github.com/kbukum/dwiflow/resilience"
)

func TestFunc_Lifecycle(t *testing.T) {
	p := process.Func("scale", []string{"bval"}, func(_ context.Context, in comm.Package) (comm.Package, error) {
		return comm.Package{"bval_scaled": in["bval"].(int) * 2, "saw_mask": in["mask"] != nil}, nil
	}).WithOptional("mask")

	if p.Name() != "scale" {
		t.Errorf("expected name scale, got %s", p.Name())
	}
	if err := p.SetInputs(comm.Package{"bval": 1000, "mask": "m.nii", "other": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Execute(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := comm.Package{"bval_scaled": 2000, "saw_mask": true}
	if got := p.Outputs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFunc_ProjectsInputs(t *testing.T) {
	var seen comm.Package
	p := process.Func("peek", []string{"a"}, func(_ context.Context, in comm.Package) (comm.Package, error) {
		seen = in
		return nil, nil
	})
	_ = p.SetInputs(comm.Package{"a": 1, "b": 2})
	_ = p.Execute(context.Background(), "")
	if !reflect.DeepEqual(seen, comm.Package{"a": 1}) {
		t.Errorf("expected only declared keys, got %v", seen)
	}
}

func TestFunc_MissingKeys(t *testing.T) {
	p := process.Func("bet", []string{"t1", "dwi"}, func(context.Context, comm.Package) (comm.Package, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})

	err := p.SetInputs(comm.Package{"dwi": "x"})
	if !errors.HasCode(err, errors.ErrCodeMissingKeys) {
		t.Fatalf("expected MISSING_KEYS, got %v", err)
	}
	if !errors.IsRecoverable(err) {
		t.Error("expected missing keys to be recoverable")
	}
	appErr, _ := errors.AsAppError(err)
	if !reflect.DeepEqual(appErr.Details["missing"], []string{"t1"}) {
		t.Errorf("expected t1 missing, got %v", appErr.Details["missing"])
	}
}

func TestFunc_HandlerError(t *testing.T) {
	boom := fmt.Errorf("boom")
	p := process.Func("fail", nil, func(context.Context, comm.Package) (comm.Package, error) {
		return nil, boom
	})
	_ = p.SetInputs(comm.Package{})
	if err := p.Execute(context.Background(), ""); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if p.Outputs() != nil {
		t.Errorf("expected no outputs after failure, got %v", p.Outputs())
	}
}

func newExec(t *testing.T, cfg process.ExecConfig) (*process.ExecProcess, string) {
	t.Helper()
	dir := t.TempDir()
	cfg.Options.WorkDir = dir
	p, err := process.Exec(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p, dir
}

func TestExec_RendersArgsAndOutputs(t *testing.T) {
	p, dir := newExec(t, process.ExecConfig{
		Name:     "denoise",
		Binary:   "sh",
		Args:     []string{"-c", "echo denoising {{.dwi}} > {{.prefix}}_den.txt"},
		Required: []string{"dwi"},
		Outputs:  map[string]string{"dwi_den": "{{.prefix}}_den.txt"},
	})

	if err := p.SetInputs(comm.Package{"dwi": "sub-01_dwi.nii", "subject": "sub-01"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logPath := filepath.Join(dir, "logs", "denoise", "item.log")
	if err := p.Execute(context.Background(), logPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(dir, "denoise", "sub-01_den.txt")
	if got := p.Outputs()["dwi_den"]; got != want {
		t.Fatalf("expected output %s, got %v", want, got)
	}
	b, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if strings.TrimSpace(string(b)) != "denoising sub-01_dwi.nii" {
		t.Errorf("unexpected output content %q", b)
	}

	log, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.HasPrefix(string(log), "$ sh -c echo denoising sub-01_dwi.nii") {
		t.Errorf("expected command line in log, got %q", log)
	}
}

func TestExec_LogAppends(t *testing.T) {
	p, dir := newExec(t, process.ExecConfig{
		Name:     "say",
		Binary:   "echo",
		Args:     []string{"{{.word}}"},
		Required: []string{"word"},
	})
	logPath := filepath.Join(dir, "say.log")
	for _, w := range []string{"first", "second"} {
		_ = p.SetInputs(comm.Package{"word": w})
		if err := p.Execute(context.Background(), logPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	log, _ := os.ReadFile(logPath)
	if !strings.Contains(string(log), "first\n") || !strings.Contains(string(log), "second\n") {
		t.Errorf("expected both runs in log, got %q", log)
	}
}

func TestExec_PrefixFallsBackToUnnamed(t *testing.T) {
	p, dir := newExec(t, process.ExecConfig{
		Name:    "touch",
		Binary:  "true",
		Outputs: map[string]string{"stem": "{{.prefix}}"},
	})
	_ = p.SetInputs(comm.Package{})
	if err := p.Execute(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Outputs()["stem"]; got != filepath.Join(dir, "touch", "unnamed") {
		t.Errorf("unexpected prefix %v", got)
	}
}

func TestExec_CustomPrefixKey(t *testing.T) {
	p, dir := newExec(t, process.ExecConfig{
		Name:      "stem",
		Binary:    "true",
		PrefixKey: "session",
		Outputs:   map[string]string{"stem": "{{.prefix}}"},
	})
	_ = p.SetInputs(comm.Package{"session": "ses/01"})
	_ = p.Execute(context.Background(), "")
	if got := p.Outputs()["stem"]; got != filepath.Join(dir, "stem", "ses_01") {
		t.Errorf("unexpected prefix %v", got)
	}
}

func TestExec_MissingKeys(t *testing.T) {
	p, _ := newExec(t, process.ExecConfig{Name: "bet", Binary: "bet", Required: []string{"t1"}})
	if err := p.SetInputs(comm.Package{"dwi": "x"}); !errors.HasCode(err, errors.ErrCodeMissingKeys) {
		t.Fatalf("expected MISSING_KEYS, got %v", err)
	}
}

func TestExec_ProcessFailure(t *testing.T) {
	p, _ := newExec(t, process.ExecConfig{
		Name:   "crash",
		Binary: "sh",
		Args:   []string{"-c", "echo segfault >&2; exit 3"},
	})
	_ = p.SetInputs(comm.Package{})
	err := p.Execute(context.Background(), "")
	if !errors.HasCode(err, errors.ErrCodeProcessFailed) {
		t.Fatalf("expected PROCESS_FAILED, got %v", err)
	}
	if p.Outputs() != nil {
		t.Errorf("expected no outputs after failure, got %v", p.Outputs())
	}
}

func TestExec_CircuitBreakerOpens(t *testing.T) {
	p, _ := newExec(t, process.ExecConfig{
		Name:           "flaky",
		Binary:         "false",
		CircuitBreaker: &resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour},
	})
	_ = p.SetInputs(comm.Package{})
	for i := range 2 {
		if err := p.Execute(context.Background(), ""); !errors.HasCode(err, errors.ErrCodeProcessFailed) {
			t.Fatalf("run %d: expected PROCESS_FAILED, got %v", i, err)
		}
	}
	err := p.Execute(context.Background(), "")
	if !errors.HasCode(err, errors.ErrCodeServiceUnavailable) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestExec_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  process.ExecConfig
	}{
		{"missing binary", process.ExecConfig{Name: "x"}},
		{"bad name", process.ExecConfig{Name: "1st step", Binary: "true"}},
		{"bad arg template", process.ExecConfig{Name: "x", Binary: "true", Args: []string{"{{.dwi"}}},
		{"bad output template", process.ExecConfig{Name: "x", Binary: "true", Outputs: map[string]string{"o": "{{end}}"}}},
		{"bad env", process.ExecConfig{Name: "x", Binary: "true", Options: process.Options{Env: []string{"NOEQUALS"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := process.Exec(tc.cfg); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestExec_UndeclaredTemplateKey(t *testing.T) {
	p, _ := newExec(t, process.ExecConfig{
		Name:   "typo",
		Binary: "echo",
		Args:   []string{"{{.dwii}}"},
	})
	_ = p.SetInputs(comm.Package{"dwi": "x"})
	if err := p.Execute(context.Background(), ""); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for unknown template key, got %v", err)
	}
}
