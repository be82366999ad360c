package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

// Splitter projects each package of one input onto several named outputs.
// Key sets may overlap and need not cover the input; unclaimed keys are
// dropped.
type Splitter struct {
	name string
	in   *Subscriber
	log  *logger.Logger

	mu      sync.Mutex
	outputs []splitOutput
	started bool
	cancel  context.CancelCauseFunc

	done chan struct{}
	err  error
}

type splitOutput struct {
	name string
	keys []string
	sub  *Subscriber
}

var _ Router = (*Splitter)(nil)

// NewSplitter creates a splitter reading from in.
func NewSplitter(name string, in *Subscriber) *Splitter {
	return &Splitter{
		name: name,
		in:   in,
		log:  logger.WithComponent("splitter").WithFields(logger.Fields(logger.FieldChannel, name)),
		done: make(chan struct{}),
	}
}

// Name returns the splitter name.
func (s *Splitter) Name() string { return s.name }

// AddOutput declares a named output receiving the given keys and returns the
// subscriber it feeds.
func (s *Splitter) AddOutput(name string, keys []string) (*Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, errors.InvalidState(s.name, "started", "add output")
	}
	for _, out := range s.outputs {
		if out.name == name {
			return nil, errors.Structural(fmt.Sprintf("splitter %s already has output %s", s.name, name))
		}
	}
	sub := NewSubscriber(s.name + "." + name)
	s.outputs = append(s.outputs, splitOutput{name: name, keys: keys, sub: sub})
	return sub, nil
}

// Output returns the subscriber of a named output.
func (s *Splitter) Output(name string) (*Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.outputs {
		if out.name == name {
			return out.sub, true
		}
	}
	return nil, false
}

// Start launches the splitting loop. The close condition is not consulted:
// a splitter has a single input and ends with it.
func (s *Splitter) Start(ctx context.Context, _ *CloseCondition, depth int) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.InvalidState(s.name, "started", "start")
	}
	if len(s.outputs) == 0 {
		s.mu.Unlock()
		return errors.Structural(fmt.Sprintf("splitter %s has no outputs", s.name))
	}
	s.started = true
	ctx, s.cancel = context.WithCancelCause(ctx)
	outputs := append([]splitOutput(nil), s.outputs...)
	s.mu.Unlock()

	for _, out := range outputs {
		out.sub.SetDepth(depth)
	}

	go func() {
		err := s.run(ctx, outputs)
		subs := make([]*Subscriber, len(outputs))
		for i, out := range outputs {
			subs[i] = out.sub
		}
		if err == nil {
			err = closeGracefully(ctx, subs)
		}
		if err != nil {
			killAll(subs)
			killAll([]*Subscriber{s.in})
			s.log.Debug("splitter stopped", logger.Fields(logger.FieldError, err.Error()))
		}
		s.err = err
		s.cancel(nil)
		close(s.done)
	}()
	return nil
}

func (s *Splitter) run(ctx context.Context, outputs []splitOutput) error {
	for {
		item, ok, err := s.in.YieldData(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, out := range outputs {
			g.Go(func() error {
				err := out.sub.Transmit(gctx, item.ID, item.Package.Project(out.keys))
				if err != nil && errors.IsRecoverable(err) {
					s.log.Warn("output rejected item", logger.MergeWithError(
						logger.Fields(logger.FieldItemID, item.ID.String(), logger.FieldSubscriber, out.sub.Name()), err))
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
}

// Wait blocks until the splitter has finished.
func (s *Splitter) Wait() error {
	<-s.done
	return s.err
}

// Done is closed once the splitter has finished.
func (s *Splitter) Done() <-chan struct{} {
	return s.done
}

// Kill force-shuts the splitter and both of its sides.
func (s *Splitter) Kill() {
	s.mu.Lock()
	if s.started {
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel(nil)
		}
		return
	}
	s.started = true
	s.mu.Unlock()

	killAll([]*Subscriber{s.in})
	for _, out := range s.outputs {
		_ = out.sub.begin(true)
	}
	close(s.done)
}
