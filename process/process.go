package process

import (
	"context"
	"slices"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
)

// Process is one processing step. A Unit drives it once per item:
// SetInputs, then Execute, then Outputs. Calls are never concurrent on one
// instance, so implementations may keep per-item state.
type Process interface {
	Name() string
	// RequiredKeys must all be present for SetInputs to succeed.
	RequiredKeys() []string
	// OptionalKeys are passed through when present.
	OptionalKeys() []string
	// SetInputs loads the item package. A missing required key is a
	// recoverable MISSING_KEYS error and the item is skipped.
	SetInputs(pkg comm.Package) error
	// Execute runs the step. It may block; logPath names the item's log file.
	Execute(ctx context.Context, logPath string) error
	// Outputs returns the keys produced by the last Execute.
	Outputs() comm.Package
}

// Handler is the body of an in-process step. It receives the projected
// inputs and returns the new keys.
type Handler func(ctx context.Context, in comm.Package) (comm.Package, error)

// FuncProcess adapts a Handler to Process.
type FuncProcess struct {
	name     string
	required []string
	optional []string
	fn       Handler

	inputs  comm.Package
	outputs comm.Package
}

var _ Process = (*FuncProcess)(nil)

// Func creates an in-process step.
func Func(name string, required []string, fn Handler) *FuncProcess {
	return &FuncProcess{name: name, required: slices.Clone(required), fn: fn}
}

// WithOptional declares keys passed to the handler when present.
func (p *FuncProcess) WithOptional(keys ...string) *FuncProcess {
	p.optional = append(p.optional, keys...)
	return p
}

func (p *FuncProcess) Name() string           { return p.name }
func (p *FuncProcess) RequiredKeys() []string { return p.required }
func (p *FuncProcess) OptionalKeys() []string { return p.optional }

// SetInputs projects pkg onto the declared keys.
func (p *FuncProcess) SetInputs(pkg comm.Package) error {
	inputs, err := project(p.name, pkg, p.required, p.optional)
	if err != nil {
		return err
	}
	p.inputs = inputs
	p.outputs = nil
	return nil
}

// Execute calls the handler. The log path is unused.
func (p *FuncProcess) Execute(ctx context.Context, _ string) error {
	out, err := p.fn(ctx, p.inputs)
	if err != nil {
		return err
	}
	p.outputs = out
	return nil
}

func (p *FuncProcess) Outputs() comm.Package { return p.outputs }

// project checks the required keys and keeps required plus optional ones.
func project(step string, pkg comm.Package, required, optional []string) (comm.Package, error) {
	if missing := pkg.Missing(required); len(missing) > 0 {
		return nil, errors.MissingKeys(step, missing)
	}
	return pkg.Project(slices.Concat(required, optional)), nil
}
