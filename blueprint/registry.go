package blueprint

import (
	"maps"
	"slices"
	"sync"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/process"
)

// Factory creates a fresh Process. Every unit gets its own instance.
type Factory func() (process.Process, error)

// Registry provides named process lookup for building pipelines.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	defaults  process.Options
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory, replacing any previous one of the same name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterFunc registers an in-process step.
func (r *Registry) RegisterFunc(name string, required []string, fn process.Handler) {
	r.Register(name, func() (process.Process, error) {
		return process.Func(name, required, fn), nil
	})
}

// SetDefaults sets the options every executable registered afterwards
// starts from. The executable's own options override them.
func (r *Registry) SetDefaults(o process.Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = o
}

// RegisterExec validates cfg and registers it as an external executable.
func (r *Registry) RegisterExec(cfg process.ExecConfig, ropts ...process.RunnerOption) error {
	r.mu.RLock()
	cfg.Options = process.MergeOptions(r.defaults, cfg.Options)
	r.mu.RUnlock()
	if _, err := process.Exec(cfg, ropts...); err != nil {
		return err
	}
	r.Register(cfg.Name, func() (process.Process, error) {
		return process.Exec(cfg, ropts...)
	})
	return nil
}

// Get retrieves a factory by name.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// New creates a process by name.
func (r *Registry) New(name string) (process.Process, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, errors.NotFound("process", name)
	}
	return f()
}

// List returns the sorted names of all registered factories.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// clone returns an independent copy, so blueprint-local registrations do
// not leak into the caller's registry.
func (r *Registry) clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{factories: maps.Clone(r.factories), defaults: r.defaults}
}
