package pipeline

import (
	"sync"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/observability"
	"github.com/kbukum/dwiflow/resilience"
)

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	maxProcesses int
	observers    observers
	metrics      *observability.Metrics
	log          *logger.Logger
	logDir       string
}

// WithMaxConcurrentProcesses caps the number of processes executing at once
// across every unit of the pipeline. Zero means unlimited.
func WithMaxConcurrentProcesses(n int) Option {
	return func(c *config) { c.maxProcesses = n }
}

// WithObserver adds an observer. Observers are notified in the order added.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithMetrics records unit and item metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithLogger sets the base logger of every component.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithLogDir sets the directory receiving one log file per unit and item.
func WithLogDir(dir string) Option {
	return func(c *config) { c.logDir = dir }
}

// env is what a pipeline hands down to its layers and units at setup.
type env struct {
	pipeline string
	observer Observer
	metrics  *observability.Metrics
	bulkhead *resilience.Bulkhead
	log      *logger.Logger
	logDir   string

	mu      sync.Mutex
	skipped map[comm.ID]struct{}
}

// skip records an item a unit dropped on a recoverable error.
func (e *env) skip(id comm.ID) {
	e.mu.Lock()
	if e.skipped == nil {
		e.skipped = make(map[comm.ID]struct{})
	}
	e.skipped[id] = struct{}{}
	e.mu.Unlock()
}

func (e *env) skippedItems() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.skipped)
}

func newEnv(name string, c config) *env {
	e := &env{
		pipeline: name,
		observer: NopObserver{},
		metrics:  c.metrics,
		log:      c.log,
		logDir:   c.logDir,
	}
	if len(c.observers) == 1 {
		e.observer = c.observers[0]
	} else if len(c.observers) > 1 {
		e.observer = c.observers
	}
	if e.log == nil {
		e.log = logger.GetGlobalLogger()
	}
	if c.maxProcesses > 0 {
		e.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          name,
			MaxConcurrent: c.maxProcesses,
		})
	}
	return e
}

// UnitOption configures how a unit is attached to a SequenceLayer.
type UnitOption func(*attachment)

type side struct {
	channel string
	filter  comm.Filter
}

type attachment struct {
	inputs  []side
	outputs []side
}

// WithSideInput feeds the unit from the named side channel in addition to
// its predecessor. The channel must be produced by an earlier unit.
func WithSideInput(channel string, f comm.Filter) UnitOption {
	return func(a *attachment) { a.inputs = append(a.inputs, side{channel: channel, filter: f}) }
}

// WithSideOutput publishes the unit's output on the named side channel, so
// a later unit of the same layer can consume it.
func WithSideOutput(channel string, f comm.Filter) UnitOption {
	return func(a *attachment) { a.outputs = append(a.outputs, side{channel: channel, filter: f}) }
}
