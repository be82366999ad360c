package comm

// IntegrateFunc folds one more part of an item into its accumulated package
// and returns the result.
type IntegrateFunc func(acc, part Package) Package

// DefaultIntegrate merges part into acc, later values winning.
func DefaultIntegrate(acc, part Package) Package {
	return acc.Merge(part)
}

// Collector converges partial packages from any number of inputs. An item
// is complete once its integrated package holds every declared key. Results
// go to a single output subscriber owned by the collector.
type Collector struct {
	*router
	out *Subscriber
}

var _ Router = (*Collector)(nil)

// NewCollector creates a collector completing on keys. WithIntegrate replaces
// the default merge.
func NewCollector(name string, keys []string, opts ...Option) *Collector {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	integrate := o.integrate
	if integrate == nil {
		integrate = DefaultIntegrate
	}

	r := newRouter("collector", name, &collectorAssembler{keys: keys, integrate: integrate}, opts)
	out := NewSubscriber(name + ".out")
	r.outputs = []endpoint{{sub: out}}
	r.fixedOutput = true
	return &Collector{router: r, out: out}
}

// OutputSubscriber returns the subscriber completed items are sent to.
func (c *Collector) OutputSubscriber() *Subscriber {
	return c.out
}

type collectorAssembler struct {
	keys      []string
	integrate IntegrateFunc
}

func (a *collectorAssembler) add(acc *accumulator, p part) {
	acc.merged = a.integrate(acc.merged, p.pkg)
}

func (a *collectorAssembler) complete(acc *accumulator) bool {
	return acc.merged.Has(a.keys...)
}

func (a *collectorAssembler) assemble(acc *accumulator) Package {
	return acc.merged
}
