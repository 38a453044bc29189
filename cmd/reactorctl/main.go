// Command reactorctl runs one of the built-in demonstration scenarios
// against the reaction engine, wiring up logging, tracing, and metrics
// the way a generated program's main() would.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "reactorctl",
		Short: "Run and inspect reactorcore engine scenarios",
	}
	root.AddCommand(runCommand())
	root.AddCommand(inspectCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
