package config

import (
	"path/filepath"
	"time"

	"github.com/kbukum/dwiflow/monitor"
	"github.com/kbukum/dwiflow/observability"
	"github.com/kbukum/dwiflow/process"
	"github.com/kbukum/dwiflow/validation"
)

// Config is the dwiflow application configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Pipeline      PipelineConfig       `yaml:"pipeline" mapstructure:"pipeline"`
	Monitor       monitor.Config       `yaml:"monitor" mapstructure:"monitor"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// PipelineConfig selects what to run and how steps execute.
type PipelineConfig struct {
	// Blueprint is a blueprint file path or a name resolved against BlueprintPaths.
	Blueprint      string   `yaml:"blueprint" mapstructure:"blueprint"`
	BlueprintPaths []string `yaml:"blueprint_paths" mapstructure:"blueprint_paths"`
	// Manifest lists the subjects fed into the pipeline.
	Manifest string `yaml:"manifest" mapstructure:"manifest"`
	WorkDir  string `yaml:"work_dir" mapstructure:"work_dir"`
	LogDir   string `yaml:"log_dir" mapstructure:"log_dir"`
	// MaxConcurrentProcesses caps concurrently executing steps; 0 is unlimited.
	MaxConcurrentProcesses int           `yaml:"max_concurrent_processes" mapstructure:"max_concurrent_processes" validate:"gte=0"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
	// Process holds the defaults every step starts from.
	Process process.Options `yaml:"process" mapstructure:"process" validate:"-"`
}

// ApplyDefaults fills unset values. Relative directories stay relative to the
// working directory of the process.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Pipeline.ApplyDefaults()
	c.Monitor.ApplyDefaults()
	c.Observability.ApplyDefaults(c.Name, c.Version, c.Environment)
}

// ApplyDefaults fills unset pipeline values.
func (c *PipelineConfig) ApplyDefaults() {
	if c.WorkDir == "" {
		c.WorkDir = "work"
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.WorkDir, "logs")
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if len(c.BlueprintPaths) == 0 {
		c.BlueprintPaths = []string{".", "blueprints"}
	}
	c.Process = process.MergeOptions(process.DefaultOptions(), c.Process)
	if c.Process.WorkDir == "" {
		c.Process.WorkDir = c.WorkDir
	}
	if c.Process.LogDir == "" {
		c.Process.LogDir = c.LogDir
	}
}

// Validate validates the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	v := validation.New()
	v.Merge("", c.ServiceConfig.Validate())
	v.Merge("pipeline", validation.Validate(c.Pipeline))
	v.Merge("pipeline.process", c.Pipeline.Process.Validate())
	v.Merge("monitor", c.Monitor.Validate())
	v.Merge("observability", c.Observability.Validate())
	return v.Err()
}
