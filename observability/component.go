package observability

import (
	"context"
	"sync"

	"github.com/kbukum/dwiflow/component"
	"github.com/kbukum/dwiflow/errors"
)

const componentName = "telemetry"

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// Component runs Setup on Start and flushes the exporters on Stop.
type Component struct {
	cfg Config

	mu  sync.Mutex
	tel *Telemetry
}

// NewComponent creates a telemetry component for cfg.
func NewComponent(cfg Config) *Component {
	return &Component{cfg: cfg}
}

func (c *Component) Name() string { return componentName }

func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tel != nil {
		return errors.InvalidState(componentName, "running", "start")
	}
	tel, err := Setup(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.tel = tel
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	tel := c.tel
	c.tel = nil
	c.mu.Unlock()
	if tel == nil {
		return nil
	}
	return tel.Shutdown(ctx)
}

func (c *Component) Health(context.Context) component.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tel == nil {
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: componentName, Status: component.StatusHealthy}
}

func (c *Component) Describe() component.Description {
	details := "disabled"
	switch {
	case c.cfg.Tracing.Enabled && c.cfg.Metrics.Enabled:
		details = "traces " + c.cfg.Tracing.Endpoint + ", metrics " + c.cfg.Metrics.Endpoint
	case c.cfg.Tracing.Enabled:
		details = "traces " + c.cfg.Tracing.Endpoint
	case c.cfg.Metrics.Enabled:
		details = "metrics " + c.cfg.Metrics.Endpoint
	}
	return component.Description{Name: "Telemetry", Type: "telemetry", Details: details}
}

// Metrics returns the engine instruments, or nil while stopped or when
// metrics are disabled.
func (c *Component) Metrics() *Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tel == nil {
		return nil
	}
	return c.tel.Metrics
}
