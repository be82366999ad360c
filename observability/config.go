package observability

import (
	"time"

	"github.com/kbukum/dwiflow/validation"
)

// Config enables the OTLP exporters for traces and metrics.
type Config struct {
	// Service identity, filled from the service config by ApplyDefaults.
	ServiceName    string `yaml:"-" mapstructure:"-"`
	ServiceVersion string `yaml:"-" mapstructure:"-"`
	Environment    string `yaml:"-" mapstructure:"-"`

	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
	// SampleRate is the sampling rate (0.0 to 1.0).
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// ApplyDefaults fills unset values and records the service identity.
func (c *Config) ApplyDefaults(name, version, env string) {
	c.ServiceName = name
	c.ServiceVersion = version
	c.Environment = env
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = defaultEndpoint
	}
	if c.Tracing.Enabled && c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = defaultEndpoint
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = defaultInterval
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	v := validation.New()
	v.Merge("", validation.Validate(c))
	v.Custom(!c.Tracing.Enabled || c.Tracing.Endpoint != "", "tracing.endpoint", "is required when tracing is enabled")
	v.Custom(!c.Metrics.Enabled || c.Metrics.Endpoint != "", "metrics.endpoint", "is required when metrics are enabled")
	return v.Err()
}

// TracerConfig derives the tracer settings.
func (c *Config) TracerConfig() TracerConfig {
	return TracerConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
	}
}

// MeterConfig derives the meter settings.
func (c *Config) MeterConfig() MeterConfig {
	return MeterConfig{
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		Endpoint:       c.Metrics.Endpoint,
		Insecure:       c.Metrics.Insecure,
		Interval:       c.Metrics.Interval,
	}
}
