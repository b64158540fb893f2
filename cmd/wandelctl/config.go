package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rhuss/wandel/pkg/catalog"
)

func newConfigCmd() *cobra.Command {
	var (
		flags         catalogFlags
		configVersion int
	)

	cmd := &cobra.Command{
		Use:   "config [engine-config-file...]",
		Short: "Print the merged transform configuration",
		Long: `Print the configuration served on /transform/config after merging the
given declarations. Version 1 leaves out the core version and the options
that depend on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := flags.load(cmd.Context(), args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(catalog.WithCoreVersion(snap.Config, configVersion))
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&configVersion, "config-version", 2, "configuration version to publish")
	return cmd
}
