package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/dwiflow/blueprint"
	"github.com/kbukum/dwiflow/bootstrap"
	"github.com/kbukum/dwiflow/comm"
	"github.com/kbukum/dwiflow/config"
	"github.com/kbukum/dwiflow/dataset"
	"github.com/kbukum/dwiflow/errors"
	"github.com/kbukum/dwiflow/logger"
	"github.com/kbukum/dwiflow/monitor"
	"github.com/kbukum/dwiflow/observability"
	"github.com/kbukum/dwiflow/pipeline"
)

type runFlags struct {
	projectFlags
	output   string
	monitor  bool
	maxProcs int
}

func runCmd() *cobra.Command {
	f := &runFlags{maxProcs: -1}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a blueprint over every subject of a manifest.",
		Long: `Run builds the pipeline described by the blueprint, feeds it one item per
subject and repetition of the manifest and waits until every item has left
the pipeline or was skipped. The command fails when items were lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(&f.projectFlags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("monitor") {
				cfg.Monitor.Enabled = f.monitor
			}
			if f.maxProcs >= 0 {
				cfg.Pipeline.MaxConcurrentProcesses = f.maxProcs
			}
			return run(cmd.Context(), cfg, f.output, cmd.OutOrStdout())
		},
	}
	f.attach(cmd)
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "write the results as YAML to this file")
	cmd.Flags().BoolVar(&f.monitor, "monitor", false, "serve progress over HTTP")
	cmd.Flags().IntVarP(&f.maxProcs, "jobs", "j", -1, "maximum concurrently running steps, 0 for unlimited")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, output string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	proj, err := loadProject(cfg, true)
	if err != nil {
		return err
	}

	app, err := bootstrap.NewApp(cfg,
		bootstrap.WithLogger(logger.GetGlobalLogger()),
		bootstrap.WithGracefulTimeout(cfg.Pipeline.ShutdownTimeout))
	if err != nil {
		return err
	}

	telemetry := observability.NewComponent(cfg.Observability)
	if err := app.RegisterComponent(telemetry); err != nil {
		return err
	}

	var hub *monitor.Hub
	if cfg.Monitor.Enabled {
		hub = monitor.NewHub()
	}
	progress := monitor.NewProgress(proj.blueprint.Name, hub)
	progress.SetExpected(proj.manifest.Len())
	if cfg.Monitor.Enabled {
		srv := monitor.NewServer(cfg.Monitor, progress, hub, monitor.WithHealth(app.Components.HealthAll))
		if err := app.RegisterComponent(srv); err != nil {
			return err
		}
	}

	app.OnStart(func(context.Context) error {
		for _, dir := range []string{cfg.Pipeline.WorkDir, cfg.Pipeline.LogDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Internal(err).WithDetail("dir", dir)
			}
		}
		return nil
	})

	var results []comm.Item
	runErr := app.RunTask(ctx, func(ctx context.Context) error {
		p, err := blueprint.Build(proj.blueprint, proj.registry,
			pipeline.WithObserver(progress),
			pipeline.WithMetrics(telemetry.Metrics()),
			pipeline.WithLogger(app.Logger),
			pipeline.WithLogDir(cfg.Pipeline.LogDir),
			pipeline.WithMaxConcurrentProcesses(cfg.Pipeline.MaxConcurrentProcesses),
		)
		if err != nil {
			return err
		}
		results, err = pipeline.NewExecutor(p, pipeline.WithSource(proj.manifest.Source())).Execute(ctx)
		return err
	})

	snap := progress.Snapshot()
	app.Logger.Info("run finished", logger.Fields(
		"expected", snap.Expected,
		"completed", snap.Completed,
		"failed", snap.Failed,
		logger.FieldDuration, snap.ElapsedMS,
	))
	fmt.Fprintf(out, "%s: %d of %d items completed, %d failed\n", snap.Pipeline, len(results), snap.Expected, snap.Failed)

	if output != "" && len(results) > 0 {
		if err := writeResults(output, results); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

// result is one completed item as written to the results file.
type result struct {
	ID      string       `yaml:"id"`
	Subject string       `yaml:"subject,omitempty"`
	Package comm.Package `yaml:"package"`
}

func writeResults(path string, items []comm.Item) error {
	doc := make([]result, len(items))
	for i, item := range items {
		subject, _ := item.Package[dataset.KeySubject].(string)
		doc[i] = result{ID: item.ID.String(), Subject: subject, Package: item.Package}
	}
	slices.SortStableFunc(doc, func(a, b result) int { return strings.Compare(a.Subject, b.Subject) })
	data, err := yaml.Marshal(map[string]any{"results": doc})
	if err != nil {
		return errors.Internal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Internal(err).WithDetail("path", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Internal(err).WithDetail("path", path)
	}
	return nil
}
