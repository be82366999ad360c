package comm

// ReadyFunc reports whether the parts received for an item are enough.
type ReadyFunc func(parts []Package) bool

// CombineFunc turns the parts received for an item into one package.
type CombineFunc func(parts []Package) Package

// Gatherer aggregates many raw parts per item. Parts are appended in arrival
// order; the item is complete when ready says so, and combine builds the
// forwarded package. Results go to a single output subscriber.
type Gatherer struct {
	*router
	out *Subscriber
}

var _ Router = (*Gatherer)(nil)

// NewGatherer creates a gatherer. A nil ready completes on the first part;
// a nil combine merges the parts in order.
func NewGatherer(name string, ready ReadyFunc, combine CombineFunc, opts ...Option) *Gatherer {
	if ready == nil {
		ready = func(parts []Package) bool { return len(parts) > 0 }
	}
	if combine == nil {
		combine = MergeAll
	}

	r := newRouter("gatherer", name, &gathererAssembler{ready: ready, combine: combine}, opts)
	out := NewSubscriber(name + ".out")
	r.outputs = []endpoint{{sub: out}}
	r.fixedOutput = true
	return &Gatherer{router: r, out: out}
}

// OutputSubscriber returns the subscriber completed items are sent to.
func (g *Gatherer) OutputSubscriber() *Subscriber {
	return g.out
}

// MergeAll merges parts in order into a new package.
func MergeAll(parts []Package) Package {
	out := make(Package)
	for _, p := range parts {
		out.Merge(p)
	}
	return out
}

// CountAtLeast returns a ReadyFunc that waits for n parts.
func CountAtLeast(n int) ReadyFunc {
	return func(parts []Package) bool { return len(parts) >= n }
}

type gathererAssembler struct {
	ready   ReadyFunc
	combine CombineFunc
}

func (a *gathererAssembler) add(acc *accumulator, p part) {
	acc.parts = append(acc.parts, p)
}

func (a *gathererAssembler) complete(acc *accumulator) bool {
	return a.ready(packages(acc.parts))
}

func (a *gathererAssembler) assemble(acc *accumulator) Package {
	return a.combine(packages(acc.parts))
}

func packages(parts []part) []Package {
	out := make([]Package, len(parts))
	for i, p := range parts {
		out[i] = p.pkg
	}
	return out
}
