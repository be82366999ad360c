// Package cmd holds the dwiflow command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

// flags shared by run and validate. Empty values keep the configured ones.
type projectFlags struct {
	configFile string
	envFile    string
	blueprint  string
	manifest   string
	workDir    string
	logLevel   string
}

func (f *projectFlags) attach(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "config file (default: dwiflow.yml in the standard locations)")
	fl.StringVar(&f.envFile, "env-file", "", ".env file to load")
	fl.StringVarP(&f.blueprint, "blueprint", "b", "", "blueprint file or name")
	fl.StringVarP(&f.manifest, "manifest", "m", "", "subject manifest")
	fl.StringVarP(&f.workDir, "work-dir", "w", "", "directory receiving step outputs")
	fl.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
}

// GetRootCmd returns the root of the command tree.
func GetRootCmd(args []string) *cobra.Command {
	root := &cobra.Command{
		Use:           "dwiflow",
		Short:         "Run diffusion-MRI processing pipelines.",
		Long:          "dwiflow streams subjects through layered pipelines of external processing steps.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetArgs(args)

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(versionCmd())
	return root
}
