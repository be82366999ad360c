package process

import (
	"context"

	"github.com/kbukum/dwiflow/resilience"
)

// Runner executes commands with a step's Options applied: working
// directory, environment, grace period, per-attempt timeout and retries.
// An optional circuit breaker keeps state across calls, so a tool that
// keeps crashing is rejected quickly.
type Runner struct {
	opts    Options
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRetry replaces the retry policy derived from Options.
func WithRetry(cfg resilience.RetryConfig) RunnerOption {
	return func(r *Runner) { r.retry = &cfg }
}

// WithCircuitBreaker guards every attempt with a circuit breaker.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) RunnerOption {
	return func(r *Runner) { r.breaker = resilience.NewCircuitBreaker(cfg) }
}

// NewRunner creates a Runner. Retries are enabled when opts.RetryAttempts > 1.
func NewRunner(opts Options, ropts ...RunnerOption) *Runner {
	r := &Runner{opts: opts}
	if opts.RetryAttempts > 1 {
		cfg := resilience.DefaultRetryConfig()
		cfg.MaxAttempts = opts.RetryAttempts
		if opts.RetryBackoff > 0 {
			cfg.InitialBackoff = opts.RetryBackoff
		}
		r.retry = &cfg
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

// Options returns the options the runner applies.
func (r *Runner) Options() Options { return r.opts }

// Run executes cmd through the retry and circuit breaker chain.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	cmd = r.apply(cmd)
	if r.retry == nil {
		return r.attempt(ctx, cmd)
	}
	return resilience.Retry(ctx, *r.retry, func() (*Result, error) {
		return r.attempt(ctx, cmd)
	})
}

func (r *Runner) attempt(ctx context.Context, cmd Command) (*Result, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	if r.breaker == nil {
		return Run(ctx, cmd)
	}

	var result *Result
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = Run(ctx, cmd)
		return err
	})
	return result, err
}

func (r *Runner) apply(cmd Command) Command {
	if cmd.Dir == "" {
		cmd.Dir = r.opts.WorkDir
	}
	if len(r.opts.Env) > 0 {
		cmd.Env = append(append([]string(nil), r.opts.Env...), cmd.Env...)
	}
	if cmd.GracePeriod == 0 {
		cmd.GracePeriod = r.opts.GracePeriod
	}
	return cmd
}

