package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var flags catalogFlags
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [engine-config-file...]",
		Short: "Check declarations for errors",
		Long: `Merge the given declarations the way an engine or router would and report
every problem found. Errors remove a transformer from the catalog;
warnings do not. The command fails when there are errors, or warnings
with --strict.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := flags.load(cmd.Context(), args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range snap.Diagnostics {
				fmt.Fprintln(out, d.String())
			}

			errs, warns := len(snap.Diagnostics.Errors()), len(snap.Diagnostics.Warnings())
			fmt.Fprintf(out, "%d transformers, %d errors, %d warnings\n", len(snap.Config.Transformers), errs, warns)
			if errs > 0 || (strict && warns > 0) {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}
