package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
)

// Node is an element of a layer: a Unit or a nested layer. Every node owns
// its input and output subscribers; the enclosing layer connects them with
// channels.
type Node interface {
	Name() string
	Input() *comm.Subscriber
	Output() *comm.Subscriber
	Run(ctx context.Context) error
	Kill()

	setup(e *env, depth int) error
	attach(owner string) error
	nodes() []Node
}

// Layer is a SequenceLayer or a ParallelLayer.
type Layer interface {
	Node
	Initialize(ctx context.Context) error
	State() State
}

func attachOnce(mu *sync.Mutex, attached *bool, name, owner string) error {
	mu.Lock()
	defer mu.Unlock()
	if *attached {
		return errors.Structural(fmt.Sprintf("%s is already part of a layer, cannot add it to %s", name, owner))
	}
	*attached = true
	return nil
}

// Units returns every unit below n in depth-first order.
func Units(n Node) []*Unit {
	if u, ok := n.(*Unit); ok {
		return []*Unit{u}
	}
	var units []*Unit
	for _, child := range n.nodes() {
		units = append(units, Units(child)...)
	}
	return units
}

// cascade codes are symptoms of a failure elsewhere in the graph.
var cascade = map[errors.ErrorCode]bool{
	errors.ErrCodeSubscriberKilled: true,
	errors.ErrCodeTransmitClosed:   true,
}

// rootCause picks the error that explains a failed run: the first one that
// is neither a cancellation nor a shutdown cascade, else the first one.
func rootCause(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if errors.Is(err, context.Canceled) {
			continue
		}
		if appErr, ok := errors.AsAppError(err); ok && cascade[appErr.Code] {
			continue
		}
		return err
	}
	return first
}
