package observability

import (
	"context"

	"github.com/kbukum/dwiflow/errors"
)

// Telemetry holds the providers started by Setup.
type Telemetry struct {
	// Metrics is nil when metrics are disabled.
	Metrics *Metrics

	shutdown []func(context.Context) error
}

// Setup starts the exporters enabled in cfg. Disabled exporters leave the
// global no-op providers in place.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{}

	if cfg.Tracing.Enabled {
		tp, err := InitTracer(ctx, cfg.TracerConfig())
		if err != nil {
			return nil, err
		}
		t.shutdown = append(t.shutdown, tp.Shutdown)
	}

	if cfg.Metrics.Enabled {
		mc := cfg.MeterConfig()
		mp, err := InitMeter(ctx, &mc)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		t.shutdown = append(t.shutdown, mp.Shutdown)

		m, err := NewMetrics(Meter(defaultTracerName))
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		t.Metrics = m
	}

	return t, nil
}

// Shutdown flushes and stops every started provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		if err := t.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}
