package pipeline

import (
	"sync"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

// State is the lifecycle state of a layer or pipeline.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateClosing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// lifecycle guards state transitions and reports them to the observer.
type lifecycle struct {
	name string
	log  *logger.Logger

	mu       sync.Mutex
	state    State
	observer Observer
}

func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// advance moves from want to to, or fails with INVALID_STATE naming op.
func (l *lifecycle) advance(op string, want, to State) error {
	l.mu.Lock()
	from := l.state
	if from != want {
		l.mu.Unlock()
		return errors.InvalidState(l.name, from.String(), op)
	}
	l.state = to
	obs := l.observer
	l.mu.Unlock()

	l.report(obs, from, to)
	return nil
}

// set moves to to unconditionally. Repeats are ignored.
func (l *lifecycle) set(to State) {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return
	}
	l.state = to
	obs := l.observer
	l.mu.Unlock()

	l.report(obs, from, to)
}

func (l *lifecycle) report(obs Observer, from, to State) {
	l.log.Debug("state changed", logger.Fields("from", from.String(), logger.FieldState, to.String()))
	if obs != nil {
		obs.StateChanged(l.name, from, to)
	}
}
