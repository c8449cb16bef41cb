// Command tfe runs the cycle-driven GPU timing simulator: load a YAML
// config, build an engine.Engine, step it for the configured cycle count,
// and print the resulting metrics report.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
