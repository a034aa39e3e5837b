package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loog-project/nmldiff/internal/document"
	"github.com/loog-project/nmldiff/internal/filter"
	"github.com/loog-project/nmldiff/internal/patch"
	"github.com/loog-project/nmldiff/internal/service"
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

var (
	applyOutput  string
	applyLabel   string
	applyFilter  string
	applyDryRun  bool
	applyHistory string
)

var applyCmd = &cobra.Command{
	Use:   "apply [FLAGS] ARTIFACT TARGET",
	Short: "Port the differing values of a diff onto a file",
	Long: `Set every differing value recorded in ARTIFACT to its value from side B,
in TARGET. TARGET must be the file the artifact knows as side A (check with
--label). Keys that exist on one side only are never added or removed.

ARTIFACT is a YAML artifact written by 'nmldiff diff --as yaml' or a JSON
Patch document (*.json) written by 'nmldiff diff --as json-patch'. JSON
patches may only test and replace existing values. With --from-history, ARTIFACT is omitted and the
recorded diff NAME[@REVISION] is used instead.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if applyHistory != "" {
			return cobra.ExactArgs(1)(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := filter.Compile(applyFilter)
		if err != nil {
			return err
		}

		svc, err := newService(applyHistory != "")
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		target := args[len(args)-1]
		opts := document.WriteOptions{
			PreserveFormatting: config.PreserveFormatting,
			BackupExisting:     config.Backup,
		}

		var art *diffmap.Artifact
		switch {
		case applyHistory != "":
			name, rev, _ := strings.Cut(applyHistory, "@")
			rec, err := svc.Export(cmd.Context(), name, rev)
			if err != nil {
				return err
			}
			art = rec.Artifact
		case strings.EqualFold(filepath.Ext(args[0]), ".json"):
			return applyJSONPatch(cmd, svc, args[0], target, opts)
		default:
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if art, err = diffmap.Deserialize(data); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
		}

		res, err := svc.Port(cmd.Context(), service.PortRequest{
			Artifact:    art,
			Target:      target,
			Label:       applyLabel,
			Destination: applyOutput,
			Filter:      f,
			DryRun:      applyDryRun,
			Write:       opts,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, p := range res.Applied {
			change := art.Differing[p.String()]
			_, _ = fmt.Fprintf(out, "%s: %v → %v\n", p, change.A, change.B)
		}
		switch {
		case applyDryRun:
			setupLog.Info().Int("changes", len(res.Applied)).Msg("Dry run, nothing written")
		case res.Written:
			setupLog.Info().Int("changes", len(res.Applied)).Str("file", res.Destination).Msg("Wrote ported file")
		default:
			setupLog.Info().Msg("Nothing to port")
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().StringVarP(&applyOutput, "output", "o", "",
		"Write the patched document here instead of overwriting TARGET")
	applyCmd.Flags().StringVarP(&applyLabel, "label", "l", "",
		"Label of TARGET (default: the artifact's label of side A)")
	applyCmd.Flags().StringVarP(&applyFilter, "filter", "f", "",
		"Only port changes matching this expression, e.g. 'Group == \"model\"'")
	applyCmd.Flags().BoolVarP(&applyDryRun, "dry-run", "n", false,
		"Show what would change without writing anything")
	applyCmd.Flags().StringVar(&applyHistory, "from-history", "",
		"Port a recorded diff, NAME or NAME@REVISION")
	applyCmd.Flags().Bool("preserve-formatting", true,
		"Edit the existing file in place, keeping comments and layout where possible")
	applyCmd.Flags().Bool("backup", true,
		"Keep the previous file as <file>.N.bak")

	mustBind("preserve-formatting",
		viper.BindPFlag("preserve-formatting", applyCmd.Flags().Lookup("preserve-formatting")))
	mustBind("backup",
		viper.BindPFlag("backup", applyCmd.Flags().Lookup("backup")))

	_ = applyCmd.RegisterFlagCompletionFunc("from-history", historyNameCompletion)

	rootCmd.AddCommand(applyCmd)
}

// applyJSONPatch applies an RFC 6902 document as written by
// 'diff --as json-patch'. Its test operations guard against drifted targets,
// anything but guarded replaces is refused.
func applyJSONPatch(cmd *cobra.Command, svc *service.DriftService, patchFile, target string, opts document.WriteOptions) error {
	doc, err := os.ReadFile(patchFile)
	if err != nil {
		return err
	}
	tree, err := svc.Load(target)
	if err != nil {
		return err
	}
	patched, err := patch.ApplyPortable(tree, doc)
	if err != nil {
		return fmt.Errorf("%s: %w", patchFile, err)
	}
	if applyDryRun {
		art, err := diffmap.Diff(tree, patched, "", "")
		if err != nil {
			return err
		}
		data, err := diffmap.Serialize(art)
		if err != nil {
			return err
		}
		return writeOutput(cmd, "", data)
	}
	dest := applyOutput
	if dest == "" {
		dest = target
	}
	return document.Files{Format: config.Format}.Write(patched, dest, opts)
}
