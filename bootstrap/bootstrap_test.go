package bootstrap

import (
	"context"
	"fmt"
	"slices"
	"syscall"
	"testing"
	"time"

	"github.com/kbukum/dwiflow/component"
	"github.com/kbukum/dwiflow/config"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

type testConfig struct {
	config.ServiceConfig
}

func newTestConfig(name string) *testConfig {
	return &testConfig{ServiceConfig: config.ServiceConfig{Name: name, Version: "1.0.0"}}
}

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	status   component.HealthStatus
	events   *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	*f.events = append(*f.events, "start:"+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(context.Context) error {
	*f.events = append(*f.events, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Health(context.Context) component.Health {
	status := f.status
	if status == "" {
		status = component.StatusHealthy
	}
	return component.Health{Name: f.name, Status: status}
}

func newApp(t *testing.T, opts ...Option) *App[*testConfig] {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	app, err := NewApp(newTestConfig("dwiflow-test"), opts...)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestNewApp(t *testing.T) {
	app := newApp(t)
	if app.Name != "dwiflow-test" || app.Version != "1.0.0" {
		t.Errorf("unexpected identity %q %q", app.Name, app.Version)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("expected defaults applied, got environment %q", app.Cfg.Environment)
	}
	if app.gracefulTimeout != 15*time.Second {
		t.Errorf("expected default graceful timeout, got %v", app.gracefulTimeout)
	}

	app = newApp(t, WithGracefulTimeout(time.Second))
	if app.gracefulTimeout != time.Second {
		t.Errorf("expected 1s graceful timeout, got %v", app.gracefulTimeout)
	}
}

func TestNewApp_Validation(t *testing.T) {
	cfg := newTestConfig("dwiflow-test")
	cfg.Environment = "moon"
	if _, err := NewApp(cfg, WithLogger(logger.Nop())); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunTask_Lifecycle(t *testing.T) {
	var events []string
	app := newApp(t)
	app.RegisterComponent(&fakeComponent{name: "telemetry", events: &events})
	app.RegisterComponent(&fakeComponent{name: "monitor", events: &events})
	app.OnStart(func(context.Context) error { events = append(events, "hook:start"); return nil })
	app.OnStop(func(context.Context) error { events = append(events, "hook:stop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		events = append(events, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	want := []string{
		"start:telemetry", "start:monitor", "hook:start", "task",
		"hook:stop", "stop:monitor", "stop:telemetry",
	}
	if !slices.Equal(events, want) {
		t.Errorf("expected %v, got %v", want, events)
	}
}

func TestRunTask_Errors(t *testing.T) {
	taskErr := fmt.Errorf("pipeline failed")
	stopErr := fmt.Errorf("flush failed")

	tests := []struct {
		name     string
		setup    func(app *App[*testConfig], events *[]string)
		task     error
		wantErr  error
		wantTask bool
	}{
		{
			name:     "task error wins over stop error",
			setup:    func(app *App[*testConfig], events *[]string) { app.OnStop(func(context.Context) error { return stopErr }) },
			task:     taskErr,
			wantErr:  taskErr,
			wantTask: true,
		},
		{
			name:     "stop error surfaces",
			setup:    func(app *App[*testConfig], events *[]string) { app.OnStop(func(context.Context) error { return stopErr }) },
			wantErr:  stopErr,
			wantTask: true,
		},
		{
			name:  "component start error skips task",
			setup: func(app *App[*testConfig], events *[]string) {
				app.RegisterComponent(&fakeComponent{name: "monitor", events: events, startErr: fmt.Errorf("address in use")})
			},
		},
		{
			name:    "start hook error skips task",
			setup:   func(app *App[*testConfig], events *[]string) { app.OnStart(func(context.Context) error { return taskErr }) },
			wantErr: taskErr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []string
			app := newApp(t)
			tt.setup(app, &events)

			ran := false
			err := app.RunTask(context.Background(), func(context.Context) error {
				ran = true
				return tt.task
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if ran != tt.wantTask {
				t.Errorf("expected task ran=%v, got %v", tt.wantTask, ran)
			}
		})
	}
}

func TestRunTask_StartFailureStopsStarted(t *testing.T) {
	var events []string
	app := newApp(t)
	app.RegisterComponent(&fakeComponent{name: "telemetry", events: &events})
	app.RegisterComponent(&fakeComponent{name: "monitor", events: &events, startErr: fmt.Errorf("address in use")})

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected start error")
	}
	if !slices.Contains(events, "stop:telemetry") || slices.Contains(events, "stop:monitor") {
		t.Errorf("expected only the started component stopped, got %v", events)
	}
}

func TestRunTask_SignalCancels(t *testing.T) {
	app := newApp(t, WithSignals(syscall.SIGUSR1))

	err := app.RunTask(context.Background(), func(ctx context.Context) error {
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return fmt.Errorf("task was not canceled")
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReadyCheck(t *testing.T) {
	var events []string
	app := newApp(t)
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Fatalf("expected empty registry to be ready, got %v", err)
	}

	app.RegisterComponent(&fakeComponent{name: "monitor", events: &events})
	app.RegisterComponent(&fakeComponent{name: "telemetry", events: &events, status: component.StatusDegraded})
	err := app.ReadyCheck(context.Background())
	if !errors.HasCode(err, errors.ErrCodeServiceUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}
