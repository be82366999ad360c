package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

const defaultInterval = 15 * time.Second

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       defaultEndpoint,
		Insecure:       true,
		Interval:       defaultInterval,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Item outcomes recorded by RecordItem.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StatusOf maps an execution error to an outcome label.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.IsRecoverable(err):
		return StatusSkipped
	default:
		return StatusFailed
	}
}

// Metrics holds the engine's metric instruments. A nil *Metrics records
// nothing, so components can carry one unconditionally.
type Metrics struct {
	itemTotal       metric.Int64Counter
	processTotal    metric.Int64Counter
	processDuration metric.Float64Histogram
	processActive   metric.Int64UpDownCounter
	errorTotal      metric.Int64Counter
	shutdownTotal   metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	itemTotal, err := meter.Int64Counter("dwiflow.item.total",
		metric.WithDescription("Items leaving a pipeline by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dwiflow.item.total counter: %w", err)
	}

	processTotal, err := meter.Int64Counter("dwiflow.process.total",
		metric.WithDescription("Process executions by unit and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dwiflow.process.total counter: %w", err)
	}

	processDuration, err := meter.Float64Histogram("dwiflow.process.duration",
		metric.WithDescription("Duration of process executions in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dwiflow.process.duration histogram: %w", err)
	}

	processActive, err := meter.Int64UpDownCounter("dwiflow.process.active",
		metric.WithDescription("Number of currently executing processes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dwiflow.process.active gauge: %w", err)
	}

	errorTotal, err := meter.Int64Counter("dwiflow.error.total",
		metric.WithDescription("Errors by code, severity and component"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dwiflow.error.total counter: %w", err)
	}

	shutdownTotal, err := meter.Int64Counter("dwiflow.shutdown.total",
		metric.WithDescription("Component shutdowns by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dwiflow.shutdown.total counter: %w", err)
	}

	return &Metrics{
		itemTotal:       itemTotal,
		processTotal:    processTotal,
		processDuration: processDuration,
		processActive:   processActive,
		errorTotal:      errorTotal,
		shutdownTotal:   shutdownTotal,
	}, nil
}

// RecordItem counts an item leaving the pipeline.
func (m *Metrics) RecordItem(ctx context.Context, pipeline, status string) {
	if m == nil {
		return
	}
	m.itemTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("status", status),
	))
}

// RecordProcessStart increments the active process count.
func (m *Metrics) RecordProcessStart(ctx context.Context, unit string) {
	if m == nil {
		return
	}
	m.processActive.Add(ctx, 1, metric.WithAttributes(attribute.String("unit", unit)))
}

// RecordProcess decrements active processes and records the finished execution.
func (m *Metrics) RecordProcess(ctx context.Context, unit, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processActive.Add(ctx, -1, metric.WithAttributes(attribute.String("unit", unit)))
	m.processTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("unit", unit),
		attribute.String("status", status),
	))
	m.processDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("unit", unit),
	))
}

// RecordError counts err against component, labelled by code and severity.
func (m *Metrics) RecordError(ctx context.Context, component string, err error) {
	if m == nil || err == nil {
		return
	}
	code := errors.ErrCodeInternal
	if appErr, ok := errors.AsAppError(err); ok {
		code = appErr.Code
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", string(code)),
		attribute.String("severity", errors.SeverityOf(code).String()),
		attribute.String("component", component),
	))
}

// RecordShutdown counts a component shutdown.
func (m *Metrics) RecordShutdown(ctx context.Context, component string, force bool) {
	if m == nil {
		return
	}
	m.shutdownTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("force", strconv.FormatBool(force)),
	))
}
