package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSelectCmd() *cobra.Command {
	var (
		flags      catalogFlags
		source     string
		target     string
		size       int64
		options    []string
		rendition  string
		candidates bool
	)

	cmd := &cobra.Command{
		Use:   "select [engine-config-file...]",
		Short: "Show the transformer a request would use",
		Example: `  wandelctl select engine_config.json -s text/plain -t application/pdf -o pageLimit=2
  wandelctl select -e http://localhost:8090 -s image/png -t image/jpeg --size 1048576 --candidates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOptions(options)
			if err != nil {
				return err
			}
			snap, err := flags.load(cmd.Context(), args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if candidates {
				list, err := snap.Index.Candidates(source, target, opts, rendition)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TRANSFORMER\tMAX SIZE\tPRIORITY")
				for _, c := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, formatSize(c.MaxSourceSizeBytes), c.Priority)
				}
				return tw.Flush()
			}

			name, err := snap.Index.FindTransformerName(source, size, target, opts, rendition)
			if err != nil {
				return err
			}
			if name == "" {
				return fmt.Errorf("no transformer for %s (%s) -> %s", source, formatSize(size), target)
			}
			fmt.Fprintln(out, name)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&source, "source", "s", "", "source mimetype")
	cmd.Flags().StringVarP(&target, "target", "t", "", "target mimetype")
	cmd.Flags().Int64Var(&size, "size", -1, "source size in bytes, -1 for unknown")
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "transform option as name=value (repeatable)")
	cmd.Flags().StringVar(&rendition, "rendition", "", "rendition name, memoizes the selection")
	cmd.Flags().BoolVar(&candidates, "candidates", false, "list every candidate instead of the selection")
	return cmd
}

func parseOptions(pairs []string) (map[string]string, error) {
	opts := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("option %q is not name=value", p)
		}
		opts[name] = value
	}
	return opts, nil
}

func formatSize(n int64) string {
	if n < 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
