// Package observability wires OpenTelemetry tracing and metrics into the
// dataflow engine.
//
// Setup starts whichever exporters the configuration enables:
//
//	tel, err := observability.Setup(ctx, cfg.Observability)
//	defer tel.Shutdown(ctx)
//
// Units wrap every process execution in an Operation, which opens a
// unit.execute span and records the process metrics:
//
//	ctx, op := observability.StartOperation(ctx, "dwi", "denoise", id, tel.Metrics)
//	err := proc.Execute(ctx, logPath)
//	op.End(ctx, err)
//
// Health types are shared by the monitor's /health endpoint.
package observability
