package dataset

import (
	"context"
	"slices"
	"sync"

	"github.com/kbukum/dwiflow/comm"
)

// Slice is an in-memory comm.Source. Every package gets a fresh ID when the
// slice is created, so the IDs are known before the run.
type Slice struct {
	mu    sync.Mutex
	items []comm.Item
	next  int
}

var _ comm.Source = (*Slice)(nil)

// NewSlice creates a source yielding pkgs in order.
func NewSlice(pkgs ...comm.Package) *Slice {
	items := make([]comm.Item, len(pkgs))
	for i, pkg := range pkgs {
		items[i] = comm.Item{ID: comm.NewID(), Package: pkg.Clone()}
	}
	return &Slice{items: items}
}

// YieldData returns the next item, or ok == false once all were yielded.
func (s *Slice) YieldData(ctx context.Context) (comm.Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return comm.Item{}, false, context.Cause(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.items) {
		return comm.Item{}, false, nil
	}
	item := s.items[s.next]
	s.next++
	return comm.Item{ID: item.ID, Package: item.Package.Clone()}, true, nil
}

// PromiseData reports whether items remain.
func (s *Slice) PromiseData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next < len(s.items)
}

// Len returns the total number of items.
func (s *Slice) Len() int {
	return len(s.items)
}

// Items returns every item, yielded or not.
func (s *Slice) Items() []comm.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Reset rewinds the source.
func (s *Slice) Reset() {
	s.mu.Lock()
	s.next = 0
	s.mu.Unlock()
}
