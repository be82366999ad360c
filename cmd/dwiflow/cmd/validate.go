package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/dwiflow/blueprint"
	"github.com/kbukum/dwiflow/config"
	"github.com/kbukum/dwiflow/pipeline"
)

func validateCmd() *cobra.Command {
	f := &projectFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and build a blueprint without running it.",
		Long: `Validate loads the configuration, resolves the blueprint and its includes,
builds the pipeline and initializes it, then prints its layout. When a
manifest is configured it is checked too, including missing input files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return validate(cmd, cfg, cmd.OutOrStdout())
		},
	}
	f.attach(cmd)
	return cmd
}

func validate(cmd *cobra.Command, cfg *config.Config, out io.Writer) error {
	proj, err := loadProject(cfg, false)
	if err != nil {
		return err
	}
	p, err := blueprint.Build(proj.blueprint, proj.registry)
	if err != nil {
		return err
	}
	if err := p.Initialize(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(out, "blueprint %s: %d layers, %d units\n", p.Name(), len(p.Layers()), len(p.Units()))
	for _, l := range p.Layers() {
		units := pipeline.Units(l)
		names := make([]string, len(units))
		for i, u := range units {
			names[i] = u.Name()
		}
		fmt.Fprintf(out, "  %-10s %-24s %s\n", kindOf(l), l.Name(), strings.Join(names, ", "))
	}

	if proj.manifest != nil {
		fmt.Fprintf(out, "manifest: %d subjects, %d items\n", len(proj.manifest.Subjects), proj.manifest.Len())
		for _, path := range proj.manifest.Missing() {
			fmt.Fprintf(out, "  missing %s\n", path)
		}
	}
	// Initialized but never run; release its subscribers.
	p.Kill()
	return nil
}

func kindOf(l pipeline.Layer) string {
	if _, ok := l.(*pipeline.ParallelLayer); ok {
		return blueprint.KindParallel
	}
	return blueprint.KindSequence
}
