package comm

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

// Direction says which side of a router a subscriber is attached to.
type Direction int

const (
	// Input subscribers are polled by the router.
	Input Direction = iota
	// Output subscribers receive completed packages.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Mode selects how completed packages are handed to outputs.
type Mode int

const (
	// RoundRobin sends each package to the next output in turn.
	RoundRobin Mode = iota
	// Broadcast sends a copy of each package to every output.
	Broadcast
)

func (m Mode) String() string {
	if m == Broadcast {
		return "broadcast"
	}
	return "round-robin"
}

// Router is the lifecycle shared by every routing component.
type Router interface {
	Name() string
	Start(ctx context.Context, cond *CloseCondition, depth int) error
	Wait() error
	Kill()
	Done() <-chan struct{}
}

// Option configures a router.
type Option func(*options)

type options struct {
	mode      Mode
	keys      []string
	integrate IntegrateFunc
	join      bool
	log       *logger.Logger
}

// WithMode sets how outputs are served. Defaults to RoundRobin.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithRequiredKeys sets the keys a package must hold before it is forwarded.
func WithRequiredKeys(keys ...string) Option {
	return func(o *options) { o.keys = append(o.keys, keys...) }
}

// WithJoinInputs makes every item wait for a part from each input. An item
// is dropped once an input it still waits on is exhausted.
func WithJoinInputs() Option {
	return func(o *options) { o.join = true }
}

// WithIntegrate sets how a Collector folds successive parts of an item.
func WithIntegrate(fn IntegrateFunc) Option {
	return func(o *options) { o.integrate = fn }
}

// WithLogger sets the logger. Defaults to a component logger of the global one.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

type endpoint struct {
	sub    *Subscriber
	filter Filter
	rank   int
}

// part is one contribution to an item. Parts merge by depth, then by the
// rank of the input they came from.
type part struct {
	depth int
	rank  int
	pkg   Package
}

type accumulator struct {
	id     ID
	parts  []part
	merged Package
	from   map[*Subscriber]struct{}
	// needed lists the inputs attached when the item first arrived.
	needed []*Subscriber
}

// assembler decides when an accumulated item is complete and what it becomes.
type assembler interface {
	add(acc *accumulator, p part)
	complete(acc *accumulator) bool
	assemble(acc *accumulator) Package
}

// router holds the polling loop shared by Channel, Collector and Gatherer.
type router struct {
	kind        string
	name        string
	asm         assembler
	mode        Mode
	join        bool
	fixedOutput bool
	log         *logger.Logger

	mu      sync.Mutex
	inputs  []endpoint
	outputs []endpoint
	started bool
	cancel  context.CancelCauseFunc

	wake chan struct{}
	done chan struct{}
	err  error

	// owned by the loop goroutine
	attached []*Subscriber
	accs     map[ID]*accumulator
	order    []ID
	next     int
}

func newRouter(kind, name string, asm assembler, opts []Option) *router {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = logger.WithComponent(kind)
	}
	return &router{
		kind: kind,
		name: name,
		asm:  asm,
		mode: o.mode,
		join: o.join,
		log:  log.WithFields(logger.Fields(logger.FieldChannel, name)),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		accs: make(map[ID]*accumulator),
	}
}

// Name returns the router name.
func (r *router) Name() string { return r.name }

// AddSubscriber attaches sub as an input or output.
func (r *router) AddSubscriber(sub *Subscriber, dir Direction) error {
	return r.AddFilteredSubscriber(sub, dir, Filter{})
}

// AddFilteredSubscriber attaches sub with a key filter. On an input the filter
// narrows what sub contributes; on an output it narrows what sub receives.
func (r *router) AddFilteredSubscriber(sub *Subscriber, dir Direction, f Filter) error {
	if sub == nil {
		return errors.InvalidInput("subscriber", "must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.InvalidState(r.name, "started", "add subscriber")
	}
	if dir == Output && r.fixedOutput {
		return errors.Structural(fmt.Sprintf("%s %s has a fixed output subscriber", r.kind, r.name))
	}
	for _, ep := range slices.Concat(r.inputs, r.outputs) {
		if ep.sub == sub {
			return errors.Structural(fmt.Sprintf("subscriber %s is already attached to %s", sub.Name(), r.name))
		}
	}

	ep := endpoint{sub: sub, filter: f}
	if dir == Output {
		r.outputs = append(r.outputs, ep)
	} else {
		r.inputs = append(r.inputs, ep)
	}
	r.log.Debug("subscriber attached", logger.Fields(logger.FieldSubscriber, sub.Name(), logger.FieldDirection, dir.String()))
	return nil
}

// HasInputs reports whether at least one input exists and one of them still
// promises data.
func (r *router) HasInputs() bool {
	r.mu.Lock()
	inputs := slices.Clone(r.inputs)
	r.mu.Unlock()
	for _, in := range inputs {
		if in.sub.PromiseData() {
			return true
		}
	}
	return false
}

// Inputs returns the attached input subscribers.
func (r *router) Inputs() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return subscribers(r.inputs)
}

// Outputs returns the attached output subscribers.
func (r *router) Outputs() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return subscribers(r.outputs)
}

// Start launches the routing loop. The loop ends when every input is
// exhausted, when cond is set and no input has data left, or when ctx is done.
func (r *router) Start(ctx context.Context, cond *CloseCondition, depth int) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.InvalidState(r.name, "started", "start")
	}
	if len(r.outputs) == 0 {
		r.mu.Unlock()
		return errors.Structural(fmt.Sprintf("%s %s has no outputs", r.kind, r.name))
	}
	r.started = true
	ctx, r.cancel = context.WithCancelCause(ctx)
	inputs := slices.Clone(r.inputs)
	outputs := slices.Clone(r.outputs)
	r.mu.Unlock()

	for i := range inputs {
		inputs[i].rank = i
	}

	for _, in := range inputs {
		in.sub.watch(r.wake)
	}

	log := r.log.WithFields(logger.Fields(logger.FieldDepth, depth))
	log.Debug("router started", logger.Fields("inputs", len(inputs), "outputs", len(outputs), "mode", r.mode.String()))

	go func() {
		err := r.run(ctx, cond, inputs, outputs)
		r.finish(ctx, err, inputs, outputs)
	}()
	return nil
}

// Wait blocks until the loop has finished and returns its error.
func (r *router) Wait() error {
	<-r.done
	return r.err
}

// Done is closed once the loop has finished.
func (r *router) Done() <-chan struct{} {
	return r.done
}

// Kill force-shuts the router. A router that was never started is closed
// in place.
func (r *router) Kill() {
	r.mu.Lock()
	if r.started {
		cancel := r.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel(nil)
		}
		return
	}
	r.started = true
	inputs := subscribers(r.inputs)
	outputs := subscribers(r.outputs)
	r.mu.Unlock()

	killAll(outputs)
	killAll(inputs)
	close(r.done)
}

func (r *router) run(ctx context.Context, cond *CloseCondition, inputs, outputs []endpoint) error {
	var condDone <-chan struct{}
	if cond != nil {
		condDone = cond.Done()
	}

	r.attached = subscribers(inputs)
	live := slices.Clone(inputs)
	for len(live) > 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		token := NewToken()
		progressed := false
		for i := 0; i < len(live); {
			in := live[i]
			if !in.sub.Timestamp(token) {
				i++
				continue
			}
			item, st := in.sub.poll()
			switch st {
			case pollItem:
				progressed = true
				if err := r.accept(ctx, in, item, live, outputs); err != nil {
					return err
				}
				i++
			case pollExhausted:
				progressed = true
				live = slices.Delete(live, i, i+1)
				r.log.Debug("input exhausted", logger.Fields(logger.FieldSubscriber, in.sub.Name(), "live", len(live)))
				if err := r.sweep(ctx, live, outputs); err != nil {
					return err
				}
			case pollKilled:
				return errors.SubscriberKilled(in.sub.Name())
			default:
				i++
			}
		}

		if progressed {
			continue
		}
		if cond != nil && cond.IsSet() {
			r.log.Debug("close condition set, inputs idle", logger.Fields("live", len(live)))
			break
		}
		select {
		case <-r.wake:
		case <-condDone:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	return r.flush(ctx, outputs)
}

func (r *router) accept(ctx context.Context, in endpoint, item Item, live, outputs []endpoint) error {
	acc, ok := r.accs[item.ID]
	if !ok {
		acc = &accumulator{
			id:     item.ID,
			merged: Package{},
			from:   make(map[*Subscriber]struct{}),
			needed: r.attached,
		}
		r.accs[item.ID] = acc
		r.order = append(r.order, item.ID)
	}
	acc.from[in.sub] = struct{}{}
	r.asm.add(acc, part{depth: in.sub.Depth(), rank: in.rank, pkg: in.filter.Apply(item.Package)})
	return r.settle(ctx, acc, live, outputs)
}

// sweep settles every accumulated item in order of first arrival. It runs
// whenever an input is exhausted.
func (r *router) sweep(ctx context.Context, live, outputs []endpoint) error {
	for _, id := range slices.Clone(r.order) {
		if err := r.settle(ctx, r.accs[id], live, outputs); err != nil {
			return err
		}
	}
	return nil
}

// settle forwards acc once it is complete and drops it once it never can be.
func (r *router) settle(ctx context.Context, acc *accumulator, live, outputs []endpoint) error {
	switch {
	case r.ready(acc):
		r.remove(acc.id)
		return r.emit(ctx, Item{ID: acc.id, Package: r.asm.assemble(acc)}, outputs)
	case r.starved(acc, live):
		r.remove(acc.id)
		r.log.Warn("dropping item, an input was exhausted without contributing",
			logger.ItemFields(acc.id.String(), r.asm.assemble(acc).Keys()))
	}
	return nil
}

func (r *router) ready(acc *accumulator) bool {
	if r.join {
		for _, sub := range acc.needed {
			if _, ok := acc.from[sub]; !ok {
				return false
			}
		}
	}
	return r.asm.complete(acc)
}

// starved reports whether a joined item waits on an input that is no longer
// live.
func (r *router) starved(acc *accumulator, live []endpoint) bool {
	if !r.join {
		return false
	}
	for _, sub := range acc.needed {
		if _, ok := acc.from[sub]; ok {
			continue
		}
		if !slices.ContainsFunc(live, func(ep endpoint) bool { return ep.sub == sub }) {
			return true
		}
	}
	return false
}

// flush forwards what completes without further input and drops the rest.
func (r *router) flush(ctx context.Context, outputs []endpoint) error {
	if err := r.sweep(ctx, nil, outputs); err != nil {
		return err
	}
	for _, id := range r.order {
		acc := r.accs[id]
		r.log.Warn("dropping incomplete item", logger.ItemFields(id.String(), r.asm.assemble(acc).Keys()))
	}
	clear(r.accs)
	r.order = nil
	return nil
}

func (r *router) remove(id ID) {
	delete(r.accs, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (r *router) emit(ctx context.Context, item Item, outputs []endpoint) error {
	if r.mode == Broadcast {
		return r.broadcast(ctx, item, outputs)
	}

	for range outputs {
		out := outputs[r.next%len(outputs)]
		r.next++
		err := out.sub.Transmit(ctx, item.ID, out.filter.Apply(item.Package))
		if err == nil {
			return nil
		}
		if !errors.IsRecoverable(err) {
			return err
		}
		r.log.Warn("output rejected item, trying next", logger.MergeWithError(
			logger.Fields(logger.FieldItemID, item.ID.String(), logger.FieldSubscriber, out.sub.Name()), err))
	}
	r.log.Warn("no output accepted item, dropping", logger.ItemFields(item.ID.String(), item.Package.Keys()))
	return nil
}

func (r *router) broadcast(ctx context.Context, item Item, outputs []endpoint) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, out := range outputs {
		g.Go(func() error {
			err := out.sub.Transmit(gctx, item.ID, out.filter.Apply(item.Package))
			if err != nil && errors.IsRecoverable(err) {
				r.log.Warn("output rejected broadcast item", logger.MergeWithError(
					logger.Fields(logger.FieldItemID, item.ID.String(), logger.FieldSubscriber, out.sub.Name()), err))
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// finish runs the shutdown cascade: outputs close gracefully after a clean
// exit; on failure or kill both sides are forced.
func (r *router) finish(ctx context.Context, err error, inputs, outputs []endpoint) {
	if err == nil {
		err = closeGracefully(ctx, subscribers(outputs))
	}
	if err != nil {
		killAll(subscribers(outputs))
		killAll(subscribers(inputs))
		if ctx.Err() != nil {
			r.log.Debug("router killed", logger.Fields(logger.FieldError, err.Error()))
		} else {
			r.log.Error("router failed", logger.Fields(logger.FieldError, err.Error()))
		}
	} else {
		r.log.Debug("router done")
	}

	r.err = err
	r.cancel(nil)
	close(r.done)
}

func subscribers(eps []endpoint) []*Subscriber {
	subs := make([]*Subscriber, len(eps))
	for i, ep := range eps {
		subs[i] = ep.sub
	}
	return subs
}
