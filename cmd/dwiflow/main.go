// Command dwiflow runs diffusion-MRI processing pipelines described by
// YAML blueprints.
package main

import (
	"os"

	"github.com/kbukum/dwiflow/cmd/dwiflow/cmd"
)

func main() {
	if err := cmd.GetRootCmd(os.Args[1:]).Execute(); err != nil {
		os.Exit(1)
	}
}
