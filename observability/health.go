package observability

import (
	"time"

	"github.com/kbukum/dwiflow/component"
)

// ServiceHealth is the health report of a running service: who it is and
// how each of its components is doing.
type ServiceHealth struct {
	Service    string                 `json:"service"`
	Version    string                 `json:"version,omitempty"`
	Status     component.HealthStatus `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Components []component.Health     `json:"components,omitempty"`
}

// NewServiceHealth starts a healthy report with no components.
func NewServiceHealth(service, version string) *ServiceHealth {
	return &ServiceHealth{
		Service:   service,
		Version:   version,
		Status:    component.StatusHealthy,
		Timestamp: time.Now().UTC(),
	}
}

// AddComponent records one component result and refolds the overall status.
func (sh *ServiceHealth) AddComponent(h component.Health) *ServiceHealth {
	sh.Components = append(sh.Components, h)
	sh.Status = component.Overall(sh.Components)
	return sh
}

// Healthy reports whether no component is unhealthy. A degraded service
// still counts as healthy.
func (sh *ServiceHealth) Healthy() bool {
	return sh.Status != component.StatusUnhealthy
}
