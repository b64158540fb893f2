// Command wandelctl inspects transform declarations: it validates them,
// shows which transformer a request would select, and prints the merged
// configuration a router would see.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wandelctl",
		Short:         "Inspect wandel transform declarations",
		Long:          "Validate engine and pipeline declarations, try transformer selection and print the merged transform configuration.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newValidateCmd(), newSelectCmd(), newConfigCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
