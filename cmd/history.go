package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:               "history [NAME]",
	Short:             "List recorded diffs",
	Args:              cobra.MaximumNArgs(1),
	ValidArgsFunction: historyNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(true)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		entries, err := svc.History(cmd.Context(), name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tREVISION\tRECORDED\tA → B\tDIFFERING\tONLY IN A\tONLY IN B")
		for _, e := range entries {
			art := e.Record.Artifact
			stats := art.Stats()
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s → %s\t%s\t%s\t%s\n",
				e.Name,
				e.Record.ID,
				humanize.Time(e.Record.Time),
				art.A, art.B,
				humanize.Comma(int64(stats.Differing)),
				humanize.Comma(int64(stats.OnlyInA)),
				humanize.Comma(int64(stats.OnlyInB)),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
