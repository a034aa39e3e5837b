package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loog-project/nmldiff/internal/patch"
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

var (
	exportRevision string
	exportAs       string
	exportOutput   string
)

var exportCmd = &cobra.Command{
	Use:   "export [FLAGS] NAME",
	Short: "Export a recorded diff",
	Long: `Export a diff recorded with 'nmldiff diff --record NAME'.

Formats (--as):
  yaml        the diff artifact, suitable for 'nmldiff apply' (default)
  json-patch  RFC 6902 patch with a test and a replace operation per differing value
  text        annotated tree`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: historyNameCompletion,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(true)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		rec, err := svc.Export(cmd.Context(), args[0], exportRevision)
		if err != nil {
			return err
		}

		var out []byte
		switch exportAs {
		case "yaml":
			out, err = diffmap.Serialize(rec.Artifact)
		case "json-patch":
			ops, opsErr := patch.Operations(rec.Artifact)
			if opsErr != nil {
				return opsErr
			}
			out, err = patch.Marshal(ops)
			out = append(out, '\n')
		case "text":
			out = []byte(renderArtifact(rec.Artifact, false))
		default:
			return fmt.Errorf("unknown export format %q", exportAs)
		}
		if err != nil {
			return err
		}
		return writeOutput(cmd, exportOutput, out)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportRevision, "revision", "latest",
		"Revision to export, as listed by 'nmldiff history'")
	exportCmd.Flags().StringVar(&exportAs, "as", "yaml",
		"Output format: yaml, json-patch or text")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Write to this file instead of stdout")

	_ = exportCmd.RegisterFlagCompletionFunc("as", cobra.FixedCompletions(
		[]string{"yaml", "json-patch", "text"}, cobra.ShellCompDirectiveNoFileComp))

	rootCmd.AddCommand(exportCmd)
}
