package pipeline

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/observability"
	"github.com/kbukum/dwiflow/process"
	"github.com/kbukum/dwiflow/util"
)

// Unit runs one Process over every item of its input subscriber and
// transmits the input package merged with the process outputs.
//
// An item whose process fails recoverably (missing keys, a timeout) is
// logged and skipped. Any other failure force-shuts the output and ends the
// unit with UNEXPECTED_UNIT.
type Unit struct {
	name string
	proc process.Process
	in   *comm.Subscriber
	out  *comm.Subscriber

	mu       sync.Mutex
	env      *env
	log      *logger.Logger
	attached bool
}

var _ Node = (*Unit)(nil)

// NewUnit wraps proc. An empty name defaults to the process name.
func NewUnit(name string, proc process.Process) *Unit {
	if name == "" {
		name = proc.Name()
	}
	return &Unit{
		name: name,
		proc: proc,
		in:   comm.NewSubscriber(name + ".in"),
		out:  comm.NewSubscriber(name + ".out"),
		log:  logger.WithComponent("unit").WithFields(logger.Fields(logger.FieldUnit, name)),
	}
}

func (u *Unit) Name() string              { return u.name }
func (u *Unit) Input() *comm.Subscriber   { return u.in }
func (u *Unit) Output() *comm.Subscriber  { return u.out }
func (u *Unit) Process() process.Process  { return u.proc }
func (u *Unit) nodes() []Node             { return nil }
func (u *Unit) attach(owner string) error { return attachOnce(&u.mu, &u.attached, u.name, owner) }

func (u *Unit) setup(e *env, depth int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.env = e
	u.log = e.log.WithComponent("unit").WithFields(logger.Fields(
		logger.FieldUnit, u.name, logger.FieldPipeline, e.pipeline, logger.FieldDepth, depth))
	u.in.SetDepth(depth)
	u.out.SetDepth(depth)
	return nil
}

// Run processes items until the input is exhausted, then closes the output
// gracefully and waits for it to drain.
func (u *Unit) Run(ctx context.Context) error {
	u.mu.Lock()
	e := u.env
	u.mu.Unlock()
	if e == nil {
		e = newEnv(u.name, config{})
		_ = u.setup(e, 0)
	}

	u.log.Debug("unit started")
	for {
		item, ok, err := u.in.YieldData(ctx)
		if err != nil {
			u.kill(ctx, e)
			return err
		}
		if !ok {
			u.log.Debug("input exhausted, closing output")
			e.metrics.RecordShutdown(ctx, u.name, false)
			return u.out.Shutdown(ctx, false)
		}

		outputs, err := u.execute(ctx, e, item)
		if err != nil {
			if ctx.Err() != nil {
				u.kill(ctx, e)
				return context.Cause(ctx)
			}
			e.metrics.RecordError(ctx, u.name, err)
			if errors.IsRecoverable(err) {
				u.log.Warn("skipping item", logger.MergeWithError(logger.Fields(logger.FieldItemID, item.ID.String()), err))
				e.skip(item.ID)
				e.observer.UnitFailed(u.name, item.ID, err)
				continue
			}
			u.log.Error("process failed", logger.MergeWithError(logger.Fields(logger.FieldItemID, item.ID.String()), err))
			u.kill(ctx, e)
			return errors.UnexpectedUnit(u.name, err)
		}

		if err := u.out.Transmit(ctx, item.ID, item.Package.Merge(outputs)); err != nil {
			u.kill(ctx, e)
			return err
		}
	}
}

// execute runs the process for one item inside a bulkhead slot and a span.
func (u *Unit) execute(ctx context.Context, e *env, item comm.Item) (comm.Package, error) {
	if e.bulkhead != nil {
		release, err := e.bulkhead.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	ctx, op := observability.StartOperation(ctx, e.pipeline, u.name, item.ID.String(), e.metrics)
	outputs, err := u.invoke(ctx, e, item)
	op.End(ctx, err)
	if err == nil {
		u.log.Debug("item processed", logger.Fields(logger.FieldItemID, item.ID.String(), logger.FieldDuration, op.Duration().Milliseconds()))
	}
	return outputs, err
}

func (u *Unit) invoke(ctx context.Context, e *env, item comm.Item) (comm.Package, error) {
	if err := u.proc.SetInputs(item.Package.Clone()); err != nil {
		return nil, err
	}
	if err := u.proc.Execute(ctx, u.logPath(e, item.ID)); err != nil {
		return nil, err
	}
	return u.proc.Outputs(), nil
}

func (u *Unit) logPath(e *env, id comm.ID) string {
	if e.logDir == "" {
		return ""
	}
	return filepath.Join(e.logDir, util.FileName(u.name), id.String()+".log")
}

func (u *Unit) kill(ctx context.Context, e *env) {
	_ = u.out.Shutdown(ctx, true)
	e.metrics.RecordShutdown(ctx, u.name, true)
}

// Kill force-shuts both subscribers. A running unit returns SUBSCRIBER_KILLED.
func (u *Unit) Kill() {
	_ = u.in.Shutdown(context.Background(), true)
	_ = u.out.Shutdown(context.Background(), true)
}
