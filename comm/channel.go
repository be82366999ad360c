package comm

import (
	"cmp"
	"slices"
)

// Channel routes packages from N inputs to M outputs. Parts yielded for the
// same ID are merged in ascending subscriber depth, later depths winning on
// key collisions; at equal depth the input attached last wins. An item is
// forwarded as soon as the merged package holds the required keys. With
// WithJoinInputs it also waits for a part from every input.
type Channel struct {
	*router
}

var _ Router = (*Channel)(nil)

// NewChannel creates a channel. Use WithMode, WithRequiredKeys and
// WithJoinInputs to shape it.
func NewChannel(name string, opts ...Option) *Channel {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Channel{router: newRouter("channel", name, &channelAssembler{keys: o.keys}, opts)}
}

type channelAssembler struct {
	keys []string
}

func (a *channelAssembler) add(acc *accumulator, p part) {
	acc.parts = append(acc.parts, p)
}

func (a *channelAssembler) complete(acc *accumulator) bool {
	return a.assemble(acc).Has(a.keys...)
}

func (a *channelAssembler) assemble(acc *accumulator) Package {
	parts := slices.Clone(acc.parts)
	slices.SortStableFunc(parts, func(x, y part) int {
		return cmp.Or(cmp.Compare(x.depth, y.depth), cmp.Compare(x.rank, y.rank))
	})
	out := make(Package)
	for _, p := range parts {
		out.Merge(p.pkg)
	}
	return out
}
