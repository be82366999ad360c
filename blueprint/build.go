package blueprint

import (
	"fmt"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/pipeline"
	"github.com/kbukum/dwiflow/validation"
)

// Build turns a resolved blueprint into an uninitialized pipeline. Processes
// declared by the blueprint are registered on a copy of registry. Every
// structural mistake (unknown process, unknown side channel, duplicate unit
// names, empty layers, dependency cycles) is INVALID_INPUT.
func Build(bp *Blueprint, registry *Registry, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	if bp == nil {
		return nil, errors.InvalidInput("blueprint", "must not be nil")
	}
	if len(bp.Includes) > 0 {
		return nil, errors.InvalidInput("includes", fmt.Sprintf("blueprint %s has unresolved includes", bp.Name))
	}
	if err := bp.Validate(); err != nil {
		return nil, err
	}

	if registry == nil {
		registry = NewRegistry()
	}
	reg := registry.clone()
	for _, cfg := range bp.Processes {
		if err := reg.RegisterExec(cfg); err != nil {
			return nil, err
		}
	}
	if err := checkProcesses(bp, reg); err != nil {
		return nil, err
	}

	levels, err := stageLevels(bp.Stages)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(bp.Name, opts...)
	for _, def := range bp.Layers {
		l, err := buildLayer(def, reg)
		if err != nil {
			return nil, err
		}
		if err := p.AddLayer(l); err != nil {
			return nil, err
		}
	}
	for i, level := range levels {
		l, err := buildLevel(fmt.Sprintf("stages.%d", i+1), level, reg)
		if err != nil {
			return nil, err
		}
		if err := p.AddLayer(l); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func checkProcesses(bp *Blueprint, reg *Registry) error {
	v := validation.New()
	for i, l := range bp.Layers {
		for j, u := range l.Units {
			v.Custom(reg.Has(u.Process), fmt.Sprintf("layers[%d].units[%d].process", i, j),
				fmt.Sprintf("unknown process %s", u.Process))
		}
	}
	for i, s := range bp.Stages {
		v.Custom(reg.Has(s.Process), fmt.Sprintf("stages[%d].process", i),
			fmt.Sprintf("unknown process %s", s.Process))
	}
	return v.Err()
}

func buildLayer(def LayerDef, reg *Registry) (pipeline.Layer, error) {
	if def.kind() == KindParallel {
		l := pipeline.NewParallelLayer(def.Name)
		for _, u := range def.Units {
			unit, err := newUnit(u.UnitName(), u.Process, reg)
			if err != nil {
				return nil, err
			}
			if err := l.AddUnit(unit); err != nil {
				return nil, err
			}
		}
		return l, nil
	}

	l := pipeline.NewSequenceLayer(def.Name)
	for _, u := range def.Units {
		unit, err := newUnit(u.UnitName(), u.Process, reg)
		if err != nil {
			return nil, err
		}
		var opts []pipeline.UnitOption
		for _, in := range u.Inputs {
			opts = append(opts, pipeline.WithSideInput(in.Channel, in.Filter()))
		}
		for _, out := range u.Outputs {
			opts = append(opts, pipeline.WithSideOutput(out.Channel, out.Filter()))
		}
		if err := l.AddUnit(unit, opts...); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// buildLevel creates the layer for one dependency level: a single stage
// runs in a sequence layer, several in a parallel one.
func buildLevel(name string, stages []StageDef, reg *Registry) (pipeline.Layer, error) {
	units := make([]*pipeline.Unit, 0, len(stages))
	for _, s := range stages {
		unit, err := newUnit(s.Name, s.Process, reg)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}

	if len(units) == 1 {
		l := pipeline.NewSequenceLayer(name)
		return l, l.AddUnit(units[0])
	}
	l := pipeline.NewParallelLayer(name)
	for _, u := range units {
		if err := l.AddUnit(u); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func newUnit(name, processName string, reg *Registry) (*pipeline.Unit, error) {
	proc, err := reg.New(processName)
	if err != nil {
		return nil, err
	}
	return pipeline.NewUnit(name, proc), nil
}
