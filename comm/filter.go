package comm

import "slices"

// Filter narrows the keys that cross a side connection. An empty Include keeps
// every key; Exclude is applied after Include.
type Filter struct {
	Include []string `yaml:"include,omitempty" mapstructure:"include"`
	Exclude []string `yaml:"exclude,omitempty" mapstructure:"exclude"`
}

// IsZero reports whether f lets everything through.
func (f Filter) IsZero() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Apply returns the filtered copy of p. A zero filter returns p unchanged.
func (f Filter) Apply(p Package) Package {
	if f.IsZero() {
		return p
	}
	var out Package
	if len(f.Include) > 0 {
		out = p.Project(f.Include)
	} else {
		out = p.Clone()
	}
	for k := range out {
		if slices.Contains(f.Exclude, k) {
			delete(out, k)
		}
	}
	return out
}
