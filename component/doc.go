// Package component defines lifecycle-managed services that run beside a
// pipeline, such as the monitor server or the telemetry exporters.
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse order. The bootstrap package drives the registry.
package component
