package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/observability"
	"github.com/kbukum/dwiflow/resilience"
	"github.com/kbukum/dwiflow/util"
	"github.com/kbukum/dwiflow/validation"
)

// DefaultPrefixKey names the package key that identifies the subject of an item.
const DefaultPrefixKey = "subject"

// ExecConfig declares a step backed by an external executable.
//
// Args and Outputs are text/template strings rendered against the item's
// inputs plus two extra values: {{.workdir}} and {{.prefix}}, a per-step,
// per-subject path stem under the working directory.
//
//	name: denoise
//	binary: dwidenoise
//	args: ["{{.dwi}}", "{{.prefix}}_denoised.nii.gz"]
//	required: [dwi]
//	outputs:
//	  dwi_denoised: "{{.prefix}}_denoised.nii.gz"
type ExecConfig struct {
	Name     string            `yaml:"name" mapstructure:"name" validate:"required,identifier"`
	Binary   string            `yaml:"binary" mapstructure:"binary" validate:"required"`
	Args     []string          `yaml:"args" mapstructure:"args"`
	Required []string          `yaml:"required" mapstructure:"required"`
	Optional []string          `yaml:"optional" mapstructure:"optional"`
	Outputs  map[string]string `yaml:"outputs" mapstructure:"outputs"`
	// PrefixKey selects the subject key for {{.prefix}}. Defaults to "subject".
	PrefixKey string  `yaml:"prefix_key" mapstructure:"prefix_key"`
	Options   Options `yaml:"options" mapstructure:"options" validate:"-"`
	// CircuitBreaker rejects further runs after repeated failures. Each
	// process instance, and so each unit, keeps its own breaker.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker,omitempty" mapstructure:"circuit_breaker" validate:"-"`
}

// Validate checks the declaration without parsing templates.
func (c ExecConfig) Validate() error {
	v := validation.New()
	v.Merge("", validation.Validate(c))
	v.Merge("options", c.Options.Validate())
	return v.Err()
}

func (c ExecConfig) runnerOptions() []RunnerOption {
	if c.CircuitBreaker == nil {
		return nil
	}
	cb := *c.CircuitBreaker
	if cb.Name == "" {
		cb.Name = c.Name
	}
	return []RunnerOption{WithCircuitBreaker(cb)}
}

// ExecProcess runs an external executable for every item.
type ExecProcess struct {
	cfg     ExecConfig
	args    []*template.Template
	outputs map[string]*template.Template
	runner  *Runner
	log     *logger.Logger

	inputs comm.Package
	result comm.Package
}

var _ Process = (*ExecProcess)(nil)

// Exec validates cfg and parses its templates. Template errors surface here
// rather than on the first item.
func Exec(cfg ExecConfig, ropts ...RunnerOption) (*ExecProcess, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PrefixKey == "" {
		cfg.PrefixKey = DefaultPrefixKey
	}

	p := &ExecProcess{
		cfg:     cfg,
		outputs: make(map[string]*template.Template, len(cfg.Outputs)),
		runner:  NewRunner(cfg.Options, append(cfg.runnerOptions(), ropts...)...),
		log:     logger.WithComponent("process").WithFields(logger.Fields(logger.FieldProcess, cfg.Name)),
	}
	for i, arg := range cfg.Args {
		tmpl, err := parse(fmt.Sprintf("%s.args[%d]", cfg.Name, i), arg)
		if err != nil {
			return nil, err
		}
		p.args = append(p.args, tmpl)
	}
	for key, out := range cfg.Outputs {
		tmpl, err := parse(fmt.Sprintf("%s.outputs.%s", cfg.Name, key), out)
		if err != nil {
			return nil, err
		}
		p.outputs[key] = tmpl
	}
	return p, nil
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.InvalidInput(name, err.Error()).WithCause(err)
	}
	return tmpl, nil
}

func (p *ExecProcess) Name() string           { return p.cfg.Name }
func (p *ExecProcess) RequiredKeys() []string { return p.cfg.Required }
func (p *ExecProcess) OptionalKeys() []string { return p.cfg.Optional }
func (p *ExecProcess) Outputs() comm.Package  { return p.result }

// SetInputs checks the required keys and keeps the declared ones. The
// prefix key is kept as well when present.
func (p *ExecProcess) SetInputs(pkg comm.Package) error {
	inputs, err := project(p.cfg.Name, pkg, p.cfg.Required, p.cfg.Optional)
	if err != nil {
		return err
	}
	if v, ok := pkg[p.cfg.PrefixKey]; ok {
		inputs[p.cfg.PrefixKey] = v
	}
	p.inputs = inputs
	p.result = nil
	return nil
}

// Execute renders the command line, runs it with output appended to
// logPath, then renders the declared outputs.
func (p *ExecProcess) Execute(ctx context.Context, logPath string) error {
	data, err := p.templateData(ctx)
	if err != nil {
		return err
	}

	args := make([]string, len(p.args))
	for i, tmpl := range p.args {
		if args[i], err = render(tmpl, data); err != nil {
			return err
		}
	}

	cmd := Command{Name: p.cfg.Name, Binary: p.cfg.Binary, Args: args}
	if logPath != "" {
		f, err := openLog(logPath)
		if err != nil {
			return err
		}
		defer f.Close()
		fmt.Fprintf(f, "$ %s %s\n", p.cfg.Binary, strings.Join(args, " "))
		cmd.Stdout, cmd.Stderr = f, f
	}

	result, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	p.log.Debug("process finished", logger.DurationFields("execute", result.Duration))

	out := make(comm.Package, len(p.outputs))
	for key, tmpl := range p.outputs {
		if out[key], err = render(tmpl, data); err != nil {
			return err
		}
	}
	p.result = out
	return nil
}

// templateData builds the render context and creates the step directory
// that {{.prefix}} points into.
func (p *ExecProcess) templateData(ctx context.Context) (map[string]any, error) {
	workDir := p.runner.Options().WorkDir
	stepDir := filepath.Join(workDir, util.FileName(p.cfg.Name))
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return nil, errors.Internal(err).WithDetail("dir", stepDir)
	}

	data := make(map[string]any, len(p.inputs)+2)
	for k, v := range p.inputs {
		data[k] = v
	}
	data["workdir"] = workDir
	data["prefix"] = filepath.Join(stepDir, util.FileName(p.subject(ctx)))
	return data, nil
}

// subject names the item: the prefix key when present, else the item ID.
func (p *ExecProcess) subject(ctx context.Context) string {
	if v, ok := p.inputs[p.cfg.PrefixKey]; ok {
		return fmt.Sprint(v)
	}
	if op := observability.OperationFromContext(ctx); op != nil {
		return op.ItemID
	}
	return ""
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.InvalidInput(tmpl.Name(), err.Error()).WithCause(err)
	}
	return buf.String(), nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Internal(err).WithDetail("log", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Internal(err).WithDetail("log", path)
	}
	return f, nil
}
