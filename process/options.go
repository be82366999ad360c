package process

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/dwiflow/validation"
)

// Options are the execution settings of a step. A pipeline-wide base is
// combined with per-step overrides through MergeOptions.
type Options struct {
	// WorkDir is where steps run and write their outputs.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
	// LogDir receives one log file per unit and item.
	LogDir string `yaml:"log_dir" mapstructure:"log_dir"`
	// Env holds extra KEY=value pairs for the subprocess.
	Env []string `yaml:"env" mapstructure:"env"`
	// Timeout bounds a single attempt. Zero means no timeout.
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period" validate:"gte=0"`
	// RetryAttempts is the total number of attempts; 0 and 1 both mean no retry.
	RetryAttempts int           `yaml:"retry_attempts" mapstructure:"retry_attempts" validate:"gte=0"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff" validate:"gte=0"`
}

// DefaultOptions returns the defaults every step starts from.
func DefaultOptions() Options {
	return Options{
		GracePeriod:   defaultGracePeriod,
		RetryAttempts: 1,
		RetryBackoff:  time.Second,
	}
}

// MergeOptions returns base with every non-zero field of override applied.
// Env entries accumulate, so a later KEY=value wins in the subprocess.
func MergeOptions(base, override Options) Options {
	out := base
	if override.WorkDir != "" {
		out.WorkDir = override.WorkDir
	}
	if override.LogDir != "" {
		out.LogDir = override.LogDir
	}
	if len(override.Env) > 0 {
		out.Env = append(append([]string(nil), base.Env...), override.Env...)
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.GracePeriod != 0 {
		out.GracePeriod = override.GracePeriod
	}
	if override.RetryAttempts != 0 {
		out.RetryAttempts = override.RetryAttempts
	}
	if override.RetryBackoff != 0 {
		out.RetryBackoff = override.RetryBackoff
	}
	return out
}

// Validate checks ranges and the KEY=value form of Env.
func (o Options) Validate() error {
	v := validation.New()
	v.Merge("", validation.Validate(o))
	for i, kv := range o.Env {
		key, _, ok := strings.Cut(kv, "=")
		v.Custom(ok && key != "", fmt.Sprintf("env[%d]", i), fmt.Sprintf("%q is not KEY=value", kv))
	}
	return v.Err()
}
