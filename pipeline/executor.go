package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/observability"
)

// Executor runs a pipeline to completion: it feeds the input from a
// source, collects every package leaving the output and reports each one
// to the observers.
type Executor struct {
	pipeline *Pipeline
	source   comm.Source
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSource feeds the pipeline from src. Without a source the caller
// transmits to Input itself and shuts it when done.
func WithSource(src comm.Source) ExecutorOption {
	return func(e *Executor) { e.source = src }
}

// NewExecutor creates an executor for p.
func NewExecutor(p *Pipeline, opts ...ExecutorOption) *Executor {
	e := &Executor{pipeline: p}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute initializes the pipeline if needed, runs it and returns the
// completed items in completion order.
//
// With a source, every pumped item must either come out or have been
// skipped by a unit. Anything else means items were lost inside the graph;
// the partial results are returned along with a STRUCTURAL error.
func (e *Executor) Execute(ctx context.Context) ([]comm.Item, error) {
	p := e.pipeline
	if p.State() == StateUninitialized {
		if err := p.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	if s := p.State(); s != StateInitialized {
		return nil, errors.InvalidState(p.name, s.String(), "execute")
	}

	var (
		pumped  int
		pumpErr error
		runErr  error
	)
	// The pump stops with the pipeline, even if the source would block.
	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()

	var g errgroup.Group
	g.Go(func() error {
		runErr = p.Run(ctx)
		stopPump()
		return nil
	})
	src := &trackedSource{Source: e.source}
	if e.source != nil {
		g.Go(func() error {
			pumped, pumpErr = comm.Pump(pumpCtx, src, p.Input())
			if pumpErr != nil {
				p.Kill()
			}
			return nil
		})
	}

	results, drainErr := e.drain(ctx)
	_ = g.Wait()

	log := p.log.WithFields(logger.Fields(logger.FieldCount, len(results)))
	switch {
	case src.err != nil:
		return results, src.err
	case runErr != nil:
		return results, runErr
	case pumpErr != nil:
		return results, pumpErr
	case drainErr != nil:
		return results, drainErr
	case e.source != nil && len(results)+p.Skipped() < pumped:
		log.Warn("pipeline lost items", logger.Fields("expected", pumped, "skipped", p.Skipped()))
		return results, errors.Structural("pipeline output truncated").
			WithDetail("expected", pumped).
			WithDetail("got", len(results)).
			WithDetail("skipped", p.Skipped())
	}
	log.Info("pipeline completed")
	return results, nil
}

func (e *Executor) drain(ctx context.Context) ([]comm.Item, error) {
	p := e.pipeline
	obs := p.currentObserver()
	var results []comm.Item
	for {
		item, ok, err := p.Output().YieldData(ctx)
		if err != nil {
			return results, err
		}
		if !ok {
			return results, nil
		}
		results = append(results, item)
		obs.ItemCompleted(item)
		p.cfg.metrics.RecordItem(ctx, p.name, observability.StatusOK)
	}
}

// trackedSource remembers a failure of the source itself, so it is not
// mistaken for the shutdown it triggers.
type trackedSource struct {
	comm.Source
	err error
}

func (s *trackedSource) YieldData(ctx context.Context) (comm.Item, bool, error) {
	item, ok, err := s.Source.YieldData(ctx)
	if err != nil && ctx.Err() == nil {
		s.err = err
	}
	return item, ok, err
}
