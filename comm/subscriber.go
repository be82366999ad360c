package comm

import (
	"context"
	"sync"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

type subState int

const (
	subOpen subState = iota
	subClosing
	subClosed
	subKilled
)

func (s subState) String() string {
	switch s {
	case subOpen:
		return "open"
	case subClosing:
		return "closing"
	case subClosed:
		return "closed"
	case subKilled:
		return "killed"
	default:
		return "unknown"
	}
}

type pollStatus int

const (
	pollEmpty pollStatus = iota
	pollItem
	pollExhausted
	pollKilled
)

// Subscriber is a mailbox holding at most one pending package per ID.
//
// Producers call Transmit, a single consumer calls YieldData. A second
// transmit for a pending ID merges into the existing entry instead of
// queueing a duplicate. Ready IDs are served in FIFO order of first arrival.
type Subscriber struct {
	name string
	log  *logger.Logger

	mu       sync.Mutex
	state    subState
	entries  map[ID]Package
	ready    []ID
	depth    int
	token    Token
	changed  chan struct{}
	watchers []chan struct{}
	done     chan struct{}
}

// NewSubscriber creates an open subscriber.
func NewSubscriber(name string) *Subscriber {
	return &Subscriber{
		name:    name,
		log:     logger.WithComponent("subscriber").WithFields(logger.Fields(logger.FieldSubscriber, name)),
		entries: make(map[ID]Package),
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name returns the subscriber name.
func (s *Subscriber) Name() string { return s.name }

// Depth returns the nesting depth used to order merges.
func (s *Subscriber) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// SetDepth assigns the nesting depth.
func (s *Subscriber) SetDepth(depth int) {
	s.mu.Lock()
	s.depth = depth
	s.mu.Unlock()
}

// Transmit merges pkg into the pending entry for id, queueing id when the
// entry is new. A gracefully closing subscriber still accepts merges but
// rejects new IDs with PEER_CLOSING; a closed or killed one rejects
// everything with TRANSMIT_CLOSED.
func (s *Subscriber) Transmit(ctx context.Context, id ID, pkg Package) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == subClosed || s.state == subKilled {
		return errors.TransmitClosed(s.name)
	}
	if entry, ok := s.entries[id]; ok {
		entry.Merge(pkg)
		return nil
	}
	if s.state == subClosing {
		return errors.PeerClosing(s.name)
	}

	s.entries[id] = pkg.Clone()
	s.ready = append(s.ready, id)
	s.notifyLocked()
	return nil
}

// YieldData blocks until an item is ready and removes it. It returns
// ok == false once the subscriber has been shut gracefully and drained, and
// SUBSCRIBER_KILLED after a forced shutdown.
func (s *Subscriber) YieldData(ctx context.Context) (Item, bool, error) {
	for {
		s.mu.Lock()
		item, st := s.pollLocked()
		changed := s.changed
		s.mu.Unlock()

		switch st {
		case pollItem:
			return item, true, nil
		case pollExhausted:
			return Item{}, false, nil
		case pollKilled:
			return Item{}, false, errors.SubscriberKilled(s.name)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Item{}, false, context.Cause(ctx)
		}
	}
}

// DataReady reports whether an item can be yielded without blocking.
func (s *Subscriber) DataReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != subKilled && len(s.ready) > 0
}

// PromiseData reports whether data is queued or may still arrive. Checking
// DataReady alone is not enough: an open subscriber may be empty now and
// receive data later.
func (s *Subscriber) PromiseData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case subOpen:
		return true
	case subClosing:
		return len(s.ready) > 0
	default:
		return false
	}
}

// Timestamp returns true the first time it sees tok and false on repeats.
// Routers use it to consult each input at most once per polling round.
func (s *Subscriber) Timestamp(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == tok {
		return false
	}
	s.token = tok
	return true
}

// Len returns the number of queued items.
func (s *Subscriber) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}

// Killed reports whether the subscriber was shut down by force.
func (s *Subscriber) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == subKilled
}

// Done is closed once the subscriber has been drained or killed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Shutdown closes the subscriber. A graceful shutdown stops new IDs, then
// waits until the consumer has drained the queue or ctx is done. A forced
// shutdown discards queued data and fails blocked consumers at once.
// Repeated calls are absorbed.
func (s *Subscriber) Shutdown(ctx context.Context, force bool) error {
	if err := s.begin(force); err != nil {
		if errors.IsAlreadyShutdown(err) {
			return nil
		}
		return err
	}
	if force {
		return nil
	}
	return s.Wait(ctx)
}

// Wait blocks until the subscriber has been drained. It returns
// SUBSCRIBER_KILLED when it was killed instead.
func (s *Subscriber) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return context.Cause(ctx)
	}
	if s.Killed() {
		return errors.SubscriberKilled(s.name)
	}
	return nil
}

// begin starts a shutdown without waiting. It returns ALREADY_SHUTDOWN when
// there is nothing left to do.
func (s *Subscriber) begin(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == subKilled || s.state == subClosed {
		return errors.AlreadyShutdown(s.name)
	}

	if force {
		dropped := len(s.ready)
		s.state = subKilled
		s.entries = make(map[ID]Package)
		s.ready = nil
		close(s.done)
		s.notifyLocked()
		s.log.Debug("subscriber killed", logger.Fields(logger.FieldCount, dropped))
		return nil
	}

	if s.state == subClosing {
		return nil
	}
	s.state = subClosing
	s.log.Debug("subscriber closing", logger.Fields(logger.FieldCount, len(s.ready)))
	if len(s.ready) == 0 {
		s.finalizeLocked()
	} else {
		s.notifyLocked()
	}
	return nil
}

func (s *Subscriber) poll() (Item, pollStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollLocked()
}

func (s *Subscriber) pollLocked() (Item, pollStatus) {
	if s.state == subKilled {
		return Item{}, pollKilled
	}
	if len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		pkg := s.entries[id]
		delete(s.entries, id)
		if s.state == subClosing && len(s.ready) == 0 {
			s.finalizeLocked()
		}
		return Item{ID: id, Package: pkg}, pollItem
	}
	if s.state == subClosed {
		return Item{}, pollExhausted
	}
	return Item{}, pollEmpty
}

// watch registers a wake channel signalled on every state change.
func (s *Subscriber) watch(wake chan struct{}) {
	s.mu.Lock()
	s.watchers = append(s.watchers, wake)
	s.mu.Unlock()
}

func (s *Subscriber) finalizeLocked() {
	s.state = subClosed
	close(s.done)
	s.notifyLocked()
	s.log.Debug("subscriber drained")
}

func (s *Subscriber) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
	for _, w := range s.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// closeGracefully shuts every subscriber gracefully, then waits for all of
// them to drain.
func closeGracefully(ctx context.Context, subs []*Subscriber) error {
	for _, sub := range subs {
		_ = sub.begin(false)
	}
	for _, sub := range subs {
		if err := sub.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func killAll(subs []*Subscriber) {
	for _, sub := range subs {
		_ = sub.begin(true)
	}
}
