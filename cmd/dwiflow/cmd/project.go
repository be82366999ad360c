package cmd

import (
	"os"

	"github.com/kbukum/dwiflow/blueprint"
	"github.com/kbukum/dwiflow/config"
	"github.com/kbukum/dwiflow/dataset"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/util"
)

// project is everything a command needs before building the pipeline.
type project struct {
	cfg       *config.Config
	blueprint *blueprint.Blueprint
	manifest  *dataset.Manifest
	registry  *blueprint.Registry
}

func loadConfig(f *projectFlags) (*config.Config, error) {
	var opts []config.LoaderOption
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	}
	if f.envFile != "" {
		opts = append(opts, config.WithEnvFile(f.envFile))
	}

	cfg := &config.Config{}
	if err := config.LoadConfig("dwiflow", cfg, opts...); err != nil {
		return nil, err
	}
	cfg.Pipeline.Blueprint = util.Coalesce(f.blueprint, cfg.Pipeline.Blueprint)
	cfg.Pipeline.Manifest = util.Coalesce(f.manifest, cfg.Pipeline.Manifest)
	cfg.Pipeline.WorkDir = util.Coalesce(f.workDir, cfg.Pipeline.WorkDir)
	cfg.Logging.Level = util.Coalesce(f.logLevel, cfg.Logging.Level)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadProject loads the blueprint and, when one is configured, the
// manifest. needManifest makes a missing manifest setting an error.
func loadProject(cfg *config.Config, needManifest bool) (*project, error) {
	if cfg.Pipeline.Blueprint == "" {
		return nil, errors.InvalidInput("pipeline.blueprint", "is required")
	}
	bp, err := openBlueprint(cfg.Pipeline.Blueprint, cfg.Pipeline.BlueprintPaths)
	if err != nil {
		return nil, err
	}

	p := &project{cfg: cfg, blueprint: bp, registry: blueprint.NewRegistry()}
	p.registry.SetDefaults(cfg.Pipeline.Process)

	switch {
	case cfg.Pipeline.Manifest != "":
		m, err := dataset.LoadManifest(cfg.Pipeline.Manifest)
		if err != nil {
			return nil, err
		}
		if missing := m.Missing(); len(missing) > 0 {
			logger.Warn("manifest references missing files", logger.Fields(logger.FieldCount, len(missing), "files", missing))
		}
		p.manifest = m
	case needManifest:
		return nil, errors.InvalidInput("pipeline.manifest", "is required")
	}
	return p, nil
}

// openBlueprint treats ref as a file when it exists and as a name searched
// in dirs otherwise.
func openBlueprint(ref string, dirs []string) (*blueprint.Blueprint, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return blueprint.Open(ref, dirs...)
	}
	loader := blueprint.NewFileLoader(dirs...)
	bp, err := loader.Load(ref)
	if err != nil {
		return nil, err
	}
	return blueprint.Resolve(bp, loader)
}
