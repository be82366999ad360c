package comm

import "github.com/kbukum/dwiflow/util"

// Package is the key-value state of one item. Values are opaque to the engine.
type Package map[string]any

// Merge copies every key of other into p, later values winning, and returns
// p. A nil p is allocated.
func (p Package) Merge(other Package) Package {
	if p == nil {
		p = make(Package, len(other))
	}
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Clone returns a shallow copy of p.
func (p Package) Clone() Package {
	out := make(Package, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Project returns the sub-package holding only the given keys that p has.
func (p Package) Project(keys []string) Package {
	out := make(Package, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Has reports whether p holds every one of keys.
func (p Package) Has(keys ...string) bool {
	return len(util.Missing(p, keys)) == 0
}

// Missing returns the required keys p does not hold.
func (p Package) Missing(required []string) []string {
	return util.Missing(p, required)
}

// Keys returns the keys of p in ascending order.
func (p Package) Keys() []string {
	return util.SortedKeys(p)
}

// Item is one queued (ID, Package) pair.
type Item struct {
	ID      ID
	Package Package
}
