package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loog-project/nmldiff/internal/patch"
	"github.com/loog-project/nmldiff/internal/service"
	"github.com/loog-project/nmldiff/pkg/diffmap"
	"github.com/loog-project/nmldiff/pkg/diffpreview"
)

// errDrift makes `diff --exit-code` fail without printing anything extra.
var errDrift = errors.New("documents differ")

var (
	diffOutput   string
	diffAs       string
	diffRecord   string
	diffColor    bool
	diffExitCode bool
)

var diffCmd = &cobra.Command{
	Use:   "diff [FLAGS] A B",
	Short: "Compare two configuration files",
	Long: `Compare two configuration files key by key. Keys only present in one file are
listed per parent, shared leaves are reported as equal or differing.

Output formats (--as):
  text             annotated tree of both files (default)
  summary          one line with the counts
  yaml             the diff artifact, suitable for 'nmldiff apply'
  json-patch       RFC 6902 patch with a test and a replace operation per
                   differing value, suitable for 'nmldiff apply'
  json-patch-full  RFC 6902 patch turning A into B, including added and
                   removed keys (not accepted by 'nmldiff apply')`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(diffRecord != "")
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		cmp, err := svc.Compare(cmd.Context(),
			service.Side{Path: args[0], Label: config.LabelA},
			service.Side{Path: args[1], Label: config.LabelB},
		)
		if err != nil {
			return err
		}

		if diffRecord != "" {
			rev, err := svc.Record(cmd.Context(), diffRecord, cmp)
			if err != nil {
				return err
			}
			setupLog.Info().Str("name", diffRecord).Stringer("revision", rev).Msg("Recorded diff")
		}

		out, err := formatComparison(cmp, diffAs, diffColor)
		if err != nil {
			return err
		}
		if err := writeOutput(cmd, diffOutput, out); err != nil {
			return err
		}

		if diffExitCode && !cmp.Artifact.Clean() {
			cmd.SilenceErrors = true
			return errDrift
		}
		return nil
	},
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "",
		"Write the result to this file instead of stdout")
	diffCmd.Flags().StringVar(&diffAs, "as", "text",
		"Output format: text, summary, yaml, json-patch or json-patch-full")
	diffCmd.Flags().StringVarP(&diffRecord, "record", "r", "",
		"Record the diff in the history database under this name")
	diffCmd.Flags().BoolVar(&diffColor, "color", false,
		"Colorize the text output")
	diffCmd.Flags().BoolVar(&diffExitCode, "exit-code", false,
		"Exit with status 1 when the files differ")
	diffCmd.Flags().String("label-a", diffmap.DefaultLabelA,
		"Label of the first file")
	diffCmd.Flags().String("label-b", diffmap.DefaultLabelB,
		"Label of the second file")

	mustBind("label-a", viper.BindPFlag("label-a", diffCmd.Flags().Lookup("label-a")))
	mustBind("label-b", viper.BindPFlag("label-b", diffCmd.Flags().Lookup("label-b")))

	_ = diffCmd.RegisterFlagCompletionFunc("as", cobra.FixedCompletions(
		[]string{"text", "summary", "yaml", "json-patch", "json-patch-full"}, cobra.ShellCompDirectiveNoFileComp))
	_ = diffCmd.RegisterFlagCompletionFunc("record", historyNameCompletion)

	rootCmd.AddCommand(diffCmd)
}

func formatComparison(cmp *service.Comparison, as string, color bool) ([]byte, error) {
	switch as {
	case "text":
		theme, opts := diffpreview.PlainTheme, diffpreview.PlainRenderOptions
		if color {
			theme, opts = diffpreview.DarkTheme, diffpreview.DefaultRenderOptions
		}
		text := diffpreview.RenderWithOptions(cmp.Artifact, cmp.TreeA, cmp.TreeB, theme, opts)
		return []byte(text + diffpreview.Summary(cmp.Artifact) + "\n"), nil
	case "summary":
		return []byte(diffpreview.Summary(cmp.Artifact) + "\n"), nil
	case "yaml":
		return diffmap.Serialize(cmp.Artifact)
	case "json-patch", "json-patch-full":
		ops, err := patch.Operations(cmp.Artifact)
		if as == "json-patch-full" {
			ops, err = patch.Compare(cmp.TreeA, cmp.TreeB)
		}
		if err != nil {
			return nil, err
		}
		out, err := patch.Marshal(ops)
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", as)
	}
}

// writeOutput writes to dest, or to the command's stdout when dest is empty.
func writeOutput(cmd *cobra.Command, dest string, data []byte) error {
	if dest == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
