// Package resilience provides the fault-tolerance primitives used around
// external processing steps:
//
//   - Retry: re-runs a flaky step with exponential backoff and jitter.
//   - CircuitBreaker: stops launching a step that keeps crashing.
//   - Bulkhead: caps how many steps run at once across a whole pipeline.
//
// The dataflow engine itself never retries; these wrap individual steps.
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "steps", MaxConcurrent: 4})
//	err := bh.Execute(ctx, func() error {
//	    return cb.Execute(ctx, func(ctx context.Context) error {
//	        return resilience.RetryFunc(ctx, resilience.DefaultRetryConfig(), run)
//	    })
//	})
package resilience
