package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/observability"
)

// Pipeline chains layers between an input and an output subscriber:
//
//	in -> L1 -> L2 -> ... -> Ln -> out
//
// Items transmitted to Input flow through every layer; completed packages
// appear on Output. Once Input is shut gracefully the pipeline drains and
// Run returns.
type Pipeline struct {
	*group
	cfg config
}

// New creates an empty pipeline.
func New(name string, opts ...Option) *Pipeline {
	p := &Pipeline{group: newGroup("pipeline", name)}
	for _, opt := range opts {
		opt(&p.cfg)
	}
	p.wire = func(int) error {
		_, err := chain(p.group, p.nodes(), nil)
		return err
	}
	return p
}

// AddLayer appends a layer. Layers can only be added before Initialize.
func (p *Pipeline) AddLayer(l Layer) error {
	if l == nil {
		return errors.InvalidInput("layer", "must not be nil")
	}
	return p.add(l)
}

// Layers returns the top-level layers in order.
func (p *Pipeline) Layers() []Layer {
	nodes := p.nodes()
	layers := make([]Layer, 0, len(nodes))
	for _, n := range nodes {
		layers = append(layers, n.(Layer))
	}
	return layers
}

// Units returns every unit of the pipeline in depth-first order.
func (p *Pipeline) Units() []*Unit {
	return Units(p)
}

// Initialize validates the structure and wires every channel.
func (p *Pipeline) Initialize(context.Context) error {
	if len(p.nodes()) == 0 {
		return errors.Structural(fmt.Sprintf("pipeline %s has no layers", p.name))
	}
	return p.setup(newEnv(p.name, p.cfg), 0)
}

// Run moves the pipeline's data until the input is exhausted and every
// layer has drained, or until the first unrecoverable failure.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun,
		trace.WithAttributes(attribute.String(observability.AttrPipeline, p.name)))
	defer span.End()

	err := p.group.Run(ctx)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return err
}

// Kill aborts the pipeline. A running pipeline returns PIPELINE_KILLED.
func (p *Pipeline) Kill() {
	p.log.Info("pipeline killed")
	p.group.Kill()
}

// Metrics returns the metrics the pipeline was configured with, or nil.
func (p *Pipeline) Metrics() *observability.Metrics {
	return p.cfg.metrics
}

// Skipped returns the number of distinct items some unit dropped on a
// recoverable error.
func (p *Pipeline) Skipped() int {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.env == nil {
		return 0
	}
	return p.env.skippedItems()
}

func (p *Pipeline) currentObserver() Observer {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.env == nil {
		return NopObserver{}
	}
	return p.env.observer
}
