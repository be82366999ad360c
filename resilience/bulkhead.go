package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/dwiflow/errors"
)

// Causes attached to rejected acquisitions.
var (
	ErrBulkheadFull    = stderrors.New("bulkhead is full")
	ErrBulkheadTimeout = stderrors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead in errors and callbacks.
	Name string `yaml:"name" mapstructure:"name"`
	// MaxConcurrent is the maximum number of concurrent calls.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// MaxWait bounds how long to wait for a slot. Zero waits until the
	// context is done.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
	// FailFast rejects immediately when no slot is free.
	FailFast bool `yaml:"fail_fast" mapstructure:"fail_fast"`
	// OnAcquire and OnRelease observe slot usage.
	OnAcquire func(name string, inUse int) `yaml:"-" mapstructure:"-"`
	OnRelease func(name string, inUse int) `yaml:"-" mapstructure:"-"`
}

// Bulkhead caps the number of concurrently running calls.
type Bulkhead struct {
	config BulkheadConfig
	sem    chan struct{}
}

// NewBulkhead creates a new bulkhead. MaxConcurrent below one means one.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 1
	}
	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Acquire blocks until a slot is free and returns the function that frees it.
// Context cancellation wins over a concurrently freed slot.
func (b *Bulkhead) Acquire(ctx context.Context) (release func(), err error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	if b.config.OnAcquire != nil {
		b.config.OnAcquire(b.config.Name, len(b.sem))
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-b.sem
		if b.config.OnRelease != nil {
			b.config.OnRelease(b.config.Name, len(b.sem))
		}
	}, nil
}

// Execute runs fn within the bulkhead.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	release, err := b.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}
	if b.config.FailFast {
		return errors.ServiceUnavailable(b.config.Name).WithCause(ErrBulkheadFull)
	}

	var timeout <-chan time.Time
	if b.config.MaxWait > 0 {
		timer := time.NewTimer(b.config.MaxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case b.sem <- struct{}{}:
		if ctx.Err() != nil {
			<-b.sem
			return ctx.Err()
		}
		return nil
	case <-timeout:
		return errors.ServiceUnavailable(b.config.Name).WithCause(ErrBulkheadTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InUse returns the number of slots currently in use.
func (b *Bulkhead) InUse() int {
	return len(b.sem)
}

// Available returns the number of free slots.
func (b *Bulkhead) Available() int {
	return b.config.MaxConcurrent - len(b.sem)
}

// MaxConcurrent returns the maximum concurrent calls allowed.
func (b *Bulkhead) MaxConcurrent() int {
	return b.config.MaxConcurrent
}
