package blueprint

import (
	"fmt"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/process"
	"github.com/kbukum/dwiflow/validation"
)

// Layer kinds.
const (
	KindSequence = "sequence"
	KindParallel = "parallel"
)

// Blueprint is a YAML-defined pipeline.
type Blueprint struct {
	// Name is the blueprint identifier, also used for includes.
	Name string `yaml:"name" validate:"required,identifier"`
	// Includes lists blueprints whose layers and stages come first.
	Includes []string `yaml:"includes,omitempty"`
	// Processes declares external executables usable by name.
	Processes []process.ExecConfig `yaml:"processes,omitempty" validate:"-"`
	Layers    []LayerDef           `yaml:"layers,omitempty" validate:"dive"`
	Stages    []StageDef           `yaml:"stages,omitempty" validate:"dive"`
}

// LayerDef declares a layer of units.
type LayerDef struct {
	Name string `yaml:"name" validate:"required,identifier"`
	// Kind is sequence (default) or parallel.
	Kind  string    `yaml:"kind,omitempty" validate:"omitempty,oneof=sequence parallel"`
	Units []UnitDef `yaml:"units" validate:"dive"`
}

// UnitDef declares a unit. Name defaults to the process name.
type UnitDef struct {
	Name    string `yaml:"name,omitempty" validate:"omitempty,identifier"`
	Process string `yaml:"process" validate:"required"`
	// Inputs and Outputs connect the unit to side channels of its
	// sequence layer.
	Inputs  []SideDef `yaml:"inputs,omitempty" validate:"dive"`
	Outputs []SideDef `yaml:"outputs,omitempty" validate:"dive"`
}

// UnitName returns the effective unit name.
func (u UnitDef) UnitName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Process
}

// SideDef names a side channel and the keys that cross it.
type SideDef struct {
	Channel string   `yaml:"channel" validate:"required,identifier"`
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Filter returns the key filter of the side connection.
func (s SideDef) Filter() comm.Filter {
	return comm.Filter{Include: s.Include, Exclude: s.Exclude}
}

// StageDef declares a unit placed by its dependencies.
type StageDef struct {
	Name      string   `yaml:"name" validate:"required,identifier"`
	Process   string   `yaml:"process" validate:"required"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// kind returns the layer kind, defaulting to sequence.
func (l LayerDef) kind() string {
	if l.Kind == "" {
		return KindSequence
	}
	return l.Kind
}

// Validate checks the blueprint on its own, without a registry.
func (b *Blueprint) Validate() error {
	v := validation.New()
	v.Merge("", validation.Validate(b))
	for i, p := range b.Processes {
		v.Merge(fmt.Sprintf("processes[%d]", i), p.Validate())
	}
	v.Custom(len(b.Layers)+len(b.Stages) > 0, "layers", "blueprint declares no layers or stages")

	var units []string
	for i, l := range b.Layers {
		field := fmt.Sprintf("layers[%d]", i)
		v.Custom(len(l.Units) > 0, field+".units", fmt.Sprintf("layer %s has no units", l.Name))
		for j, u := range l.Units {
			units = append(units, u.UnitName())
			if l.kind() == KindParallel {
				v.Custom(len(u.Inputs)+len(u.Outputs) == 0, fmt.Sprintf("%s.units[%d]", field, j),
					"side channels are only supported in sequence layers")
			}
		}
		validateSides(v, field, l)
	}
	for _, s := range b.Stages {
		units = append(units, s.Name)
	}
	v.Unique("units", units)
	return v.Err()
}

// validateSides checks that every side channel of l is produced by an
// earlier unit and consumed by exactly one later unit.
func validateSides(v *validation.Validator, field string, l LayerDef) {
	producers := make(map[string]int)
	consumers := make(map[string]int)
	for j, u := range l.Units {
		for _, in := range u.Inputs {
			_, ok := producers[in.Channel]
			v.Custom(ok, fmt.Sprintf("%s.units[%d].inputs", field, j),
				fmt.Sprintf("unknown side channel %s", in.Channel))
			consumers[in.Channel]++
		}
		for _, out := range u.Outputs {
			_, dup := producers[out.Channel]
			v.Custom(!dup, fmt.Sprintf("%s.units[%d].outputs", field, j),
				fmt.Sprintf("side channel %s is declared twice", out.Channel))
			producers[out.Channel] = j
		}
	}
	for ch := range producers {
		v.Custom(consumers[ch] == 1, field, fmt.Sprintf("side channel %s needs exactly one consumer, has %d", ch, consumers[ch]))
	}
}
