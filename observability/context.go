package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/dwiflow/errors"
)

// Operation tracks one process execution for one item: a span plus the
// process metrics.
type Operation struct {
	Pipeline  string
	Unit      string
	ItemID    string
	StartTime time.Time
	Metrics   *Metrics

	span trace.Span
}

// operationKey is the context key for Operation.
type operationKey struct{}

// StartOperation starts a unit.execute span and records the process start.
// If metrics is nil, metric recording is silently skipped.
func StartOperation(ctx context.Context, pipeline, unit, itemID string, metrics *Metrics) (context.Context, *Operation) {
	op := &Operation{
		Pipeline:  pipeline,
		Unit:      unit,
		ItemID:    itemID,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
	ctx, op.span = StartSpan(ctx, SpanUnitExecute, trace.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrUnit, unit),
		attribute.String(AttrItemID, itemID),
	))
	metrics.RecordProcessStart(ctx, unit)
	return context.WithValue(ctx, operationKey{}, op), op
}

// OperationFromContext retrieves the running Operation, or nil.
func OperationFromContext(ctx context.Context) *Operation {
	if op, ok := ctx.Value(operationKey{}).(*Operation); ok {
		return op
	}
	return nil
}

// End ends the span and records the outcome of err.
func (op *Operation) End(ctx context.Context, err error) {
	duration := op.Duration()
	status := StatusOf(err)

	if err != nil {
		op.span.RecordError(err)
		op.span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
		if appErr, ok := errors.AsAppError(err); ok {
			op.span.SetAttributes(attribute.String(AttrErrorCode, string(appErr.Code)))
		}
	}
	op.span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	op.span.End()

	op.Metrics.RecordProcess(ctx, op.Unit, status, duration)
}

// Duration returns the elapsed time since operation start.
func (op *Operation) Duration() time.Duration {
	return time.Since(op.StartTime)
}
