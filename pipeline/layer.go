package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
)

// group is the supervisor shared by layers and the pipeline: it owns the
// channels between its children, runs every child in its own goroutine and
// turns the first failure into a cancellation of the whole group.
type group struct {
	lifecycle
	kind string
	in   *comm.Subscriber
	out  *comm.Subscriber
	wire func(depth int) error

	runMu    sync.Mutex
	children []Node
	channels []*comm.Channel
	cond     *comm.CloseCondition
	env      *env
	depth    int
	cancel   context.CancelCauseFunc
	attached bool
}

func newGroup(kind, name string) *group {
	return &group{
		lifecycle: lifecycle{name: name, log: logger.WithComponent(kind).WithFields(logger.Fields(logger.FieldLayer, name))},
		kind:      kind,
		in:        comm.NewSubscriber(name + ".in"),
		out:       comm.NewSubscriber(name + ".out"),
		cond:      comm.NewCloseCondition(),
	}
}

func (g *group) Name() string             { return g.name }
func (g *group) Input() *comm.Subscriber  { return g.in }
func (g *group) Output() *comm.Subscriber { return g.out }

func (g *group) nodes() []Node {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return slices.Clone(g.children)
}

func (g *group) attach(owner string) error {
	return attachOnce(&g.runMu, &g.attached, g.name, owner)
}

// add appends a child. Children can only be added before initialization.
func (g *group) add(n Node) error {
	if n == nil {
		return errors.InvalidInput("node", "must not be nil")
	}
	if s := g.State(); s != StateUninitialized {
		return errors.InvalidState(g.name, s.String(), "add node")
	}
	g.runMu.Lock()
	for _, c := range g.children {
		if c.Name() == n.Name() {
			g.runMu.Unlock()
			return errors.Structural(fmt.Sprintf("%s already has a node named %s", g.name, n.Name()))
		}
	}
	g.runMu.Unlock()

	if err := n.attach(g.name); err != nil {
		return err
	}
	g.runMu.Lock()
	g.children = append(g.children, n)
	g.runMu.Unlock()
	return nil
}

func (g *group) setup(e *env, depth int) error {
	if len(g.nodes()) == 0 {
		return errors.Structural(fmt.Sprintf("%s %s has no nodes", g.kind, g.name))
	}

	g.lifecycle.mu.Lock()
	g.observer = e.observer
	g.log = e.log.WithComponent(g.kind).WithFields(logger.Fields(
		logger.FieldLayer, g.name, logger.FieldPipeline, e.pipeline, logger.FieldDepth, depth))
	g.lifecycle.mu.Unlock()

	if err := g.advance("initialize", StateUninitialized, StateInitialized); err != nil {
		return err
	}

	g.runMu.Lock()
	g.env = e
	g.depth = depth
	g.runMu.Unlock()
	g.in.SetDepth(depth)
	g.out.SetDepth(depth)

	for _, child := range g.nodes() {
		if err := child.setup(e, depth+1); err != nil {
			return err
		}
	}
	return g.wire(depth)
}

// newChannel creates a channel owned by the group.
func (g *group) newChannel(name string, opts ...comm.Option) *comm.Channel {
	ch := comm.NewChannel(name, append([]comm.Option{comm.WithLogger(g.env.log.WithComponent("channel"))}, opts...)...)
	g.channels = append(g.channels, ch)
	return ch
}

// connect attaches subs to ch, stopping at the first error.
func connect(ch *comm.Channel, dir comm.Direction, subs ...*comm.Subscriber) error {
	for _, sub := range subs {
		if err := ch.AddSubscriber(sub, dir); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the channels, runs every child concurrently and waits for the
// whole group to drain. The first failure cancels the group; the returned
// error is the root cause rather than the shutdown cascade it triggered.
func (g *group) Run(ctx context.Context) error {
	if err := g.advance("run", StateInitialized, StateRunning); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	g.runMu.Lock()
	g.cancel = cancel
	children := slices.Clone(g.children)
	channels := slices.Clone(g.channels)
	depth := g.depth
	g.runMu.Unlock()

	var (
		mu       sync.Mutex
		errs     []error
		watchers sync.WaitGroup
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		cancel(err)
	}

	for i, ch := range channels {
		if err := ch.Start(ctx, g.cond, depth); err != nil {
			fail(err)
			for _, rest := range channels[i:] {
				rest.Kill()
			}
			for _, child := range children {
				child.Kill()
			}
			channels = channels[:i]
			break
		}
		watchers.Go(func() {
			if err := ch.Wait(); err != nil {
				cancel(err)
			}
		})
	}

	var eg errgroup.Group
	if ctx.Err() == nil {
		for _, child := range children {
			eg.Go(func() error {
				if err := child.Run(ctx); err != nil {
					fail(err)
					return err
				}
				return nil
			})
		}
	}
	_ = eg.Wait()

	g.cond.Set()
	g.set(StateClosing)
	watchers.Wait()

	if ctx.Err() != nil {
		errs = append([]error{context.Cause(ctx)}, errs...)
	}
	for _, ch := range channels {
		errs = append(errs, ch.Wait())
	}
	err := rootCause(errs)

	if err != nil {
		g.log.Debug(g.kind+" stopped", logger.Fields(logger.FieldError, err.Error()))
	}
	g.set(StateDone)
	return err
}

// Kill force-shuts the group. A running group is cancelled with
// PIPELINE_KILLED and unwinds through its channels; a group that never ran
// is closed in place.
func (g *group) Kill() {
	g.runMu.Lock()
	cancel := g.cancel
	children := slices.Clone(g.children)
	channels := slices.Clone(g.channels)
	e := g.env
	g.runMu.Unlock()

	if e != nil {
		e.metrics.RecordShutdown(context.Background(), g.name, true)
	}
	_ = g.in.Shutdown(context.Background(), true)
	if cancel != nil {
		cancel(errors.PipelineKilled(g.name))
		return
	}

	for _, ch := range channels {
		ch.Kill()
	}
	for _, child := range children {
		child.Kill()
	}
	_ = g.out.Shutdown(context.Background(), true)
	g.set(StateDone)
}

// Initialize validates and wires a standalone layer.
func (g *group) Initialize(context.Context) error {
	return g.setup(newEnv(g.name, config{}), 0)
}

// SequenceLayer chains its nodes: the output of each feeds the input of the
// next. Units may additionally exchange data over named side channels.
type SequenceLayer struct {
	*group
	attachments []attachment
	sides       map[string]*sideChannel
}

type sideChannel struct {
	sub      *comm.Subscriber
	producer int
	consumer int
}

var _ Layer = (*SequenceLayer)(nil)

// NewSequenceLayer creates an empty sequence layer.
func NewSequenceLayer(name string) *SequenceLayer {
	l := &SequenceLayer{group: newGroup("sequence", name), sides: make(map[string]*sideChannel)}
	l.wire = l.wireChannels
	return l
}

// AddUnit appends u. Side inputs must name a side channel declared as an
// output by an earlier unit, and every side channel has exactly one consumer.
func (l *SequenceLayer) AddUnit(u *Unit, opts ...UnitOption) error {
	if u == nil {
		return errors.InvalidInput("unit", "must not be nil")
	}
	var a attachment
	for _, opt := range opts {
		opt(&a)
	}

	idx := len(l.nodes())
	for _, s := range a.inputs {
		sc, ok := l.sides[s.channel]
		if !ok {
			return errors.InvalidInput("side_input", fmt.Sprintf("unit %s reads unknown side channel %s", u.Name(), s.channel))
		}
		if sc.consumer >= 0 {
			return errors.InvalidInput("side_input", fmt.Sprintf("side channel %s already has a consumer", s.channel))
		}
	}
	for _, s := range a.outputs {
		if _, ok := l.sides[s.channel]; ok {
			return errors.InvalidInput("side_output", fmt.Sprintf("side channel %s is declared twice", s.channel))
		}
	}

	if err := l.add(u); err != nil {
		return err
	}
	for _, s := range a.outputs {
		l.sides[s.channel] = &sideChannel{
			sub:      comm.NewSubscriber(fmt.Sprintf("%s.side.%s", l.name, s.channel)),
			producer: idx,
			consumer: -1,
		}
	}
	for _, s := range a.inputs {
		l.sides[s.channel].consumer = idx
	}
	l.attachments = append(l.attachments, a)
	return nil
}

// AddLayer appends a nested layer.
func (l *SequenceLayer) AddLayer(layer Layer) error {
	if layer == nil {
		return errors.InvalidInput("layer", "must not be nil")
	}
	if err := l.add(layer); err != nil {
		return err
	}
	l.attachments = append(l.attachments, attachment{})
	return nil
}

func (l *SequenceLayer) wireChannels(depth int) error {
	for name, sc := range l.sides {
		if sc.consumer < 0 {
			return errors.Structural(fmt.Sprintf("side channel %s of %s has no consumer", name, l.name))
		}
		// Side data merges below the main path, so the fresher main path
		// wins on key collisions.
		sc.sub.SetDepth(depth)
	}

	children := l.nodes()
	feeds, err := chain(l.group, children, func(i int) []comm.Option {
		var o []comm.Option
		if len(l.attachments[i].outputs) > 0 {
			o = append(o, comm.WithMode(comm.Broadcast))
		}
		// The feed of a side consumer joins the main path with side data,
		// so an item the main path skipped is not sent on side data alone.
		if i+1 < len(l.attachments) && len(l.attachments[i+1].inputs) > 0 {
			o = append(o, comm.WithJoinInputs())
		}
		return o
	})
	if err != nil {
		return err
	}

	for i, a := range l.attachments {
		for _, s := range a.outputs {
			if err := feeds[i+1].AddFilteredSubscriber(l.sides[s.channel].sub, comm.Output, s.filter); err != nil {
				return err
			}
		}
		for _, s := range a.inputs {
			if err := feeds[i].AddFilteredSubscriber(l.sides[s.channel].sub, comm.Input, s.filter); err != nil {
				return err
			}
		}
	}
	return nil
}

// chain connects in -> n1 -> ... -> nk -> out and returns the channels, where
// channel i feeds node i and the last one feeds g.out. opts selects extra
// options for the channel after node i.
func chain(g *group, children []Node, opts func(i int) []comm.Option) ([]*comm.Channel, error) {
	feeds := make([]*comm.Channel, 0, len(children)+1)

	begin := g.newChannel(g.name + ".begin")
	if err := connect(begin, comm.Input, g.in); err != nil {
		return nil, err
	}
	feeds = append(feeds, begin)

	for i, child := range children {
		if err := connect(feeds[i], comm.Output, child.Input()); err != nil {
			return nil, err
		}
		name := g.name + ".end"
		if i < len(children)-1 {
			name = fmt.Sprintf("%s.%s>%s", g.name, child.Name(), children[i+1].Name())
		}
		var o []comm.Option
		if opts != nil {
			o = opts(i)
		}
		ch := g.newChannel(name, o...)
		if err := connect(ch, comm.Input, child.Output()); err != nil {
			return nil, err
		}
		feeds = append(feeds, ch)
	}
	return feeds, connect(feeds[len(children)], comm.Output, g.out)
}

// ParallelLayer broadcasts every item to all of its nodes and merges their
// outputs back into one package per item.
type ParallelLayer struct {
	*group
}

var _ Layer = (*ParallelLayer)(nil)

// NewParallelLayer creates an empty parallel layer.
func NewParallelLayer(name string) *ParallelLayer {
	l := &ParallelLayer{group: newGroup("parallel", name)}
	l.wire = l.wireChannels
	return l
}

// AddUnit adds a branch.
func (l *ParallelLayer) AddUnit(u *Unit) error {
	if u == nil {
		return errors.InvalidInput("unit", "must not be nil")
	}
	return l.add(u)
}

// AddLayer adds a nested layer as a branch.
func (l *ParallelLayer) AddLayer(layer Layer) error {
	if layer == nil {
		return errors.InvalidInput("layer", "must not be nil")
	}
	return l.add(layer)
}

func (l *ParallelLayer) wireChannels(int) error {
	begin := l.newChannel(l.name+".begin", comm.WithMode(comm.Broadcast))
	end := l.newChannel(l.name+".end", comm.WithJoinInputs())
	if err := connect(begin, comm.Input, l.in); err != nil {
		return err
	}
	for _, child := range l.nodes() {
		if err := connect(begin, comm.Output, child.Input()); err != nil {
			return err
		}
		if err := connect(end, comm.Input, child.Output()); err != nil {
			return err
		}
	}
	return connect(end, comm.Output, l.out)
}
