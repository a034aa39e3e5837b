package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loog-project/nmldiff/pkg/diffmap"
	"github.com/loog-project/nmldiff/pkg/diffpreview"
)

var showColor bool

var showCmd = &cobra.Command{
	Use:   "show ARTIFACT",
	Short: "Render a diff artifact",
	Long: `Render a YAML diff artifact as an annotated tree. Keys present on one side
only are shown without values, since the artifact does not carry them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		art, err := diffmap.Deserialize(data)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return writeOutput(cmd, "", []byte(renderArtifact(art, showColor)))
	},
}

func init() {
	showCmd.Flags().BoolVar(&showColor, "color", false,
		"Colorize the output")
	rootCmd.AddCommand(showCmd)
}

func renderArtifact(art *diffmap.Artifact, color bool) string {
	theme, opts := diffpreview.PlainTheme, diffpreview.PlainRenderOptions
	if color {
		theme, opts = diffpreview.DarkTheme, diffpreview.DefaultRenderOptions
	}
	return diffpreview.RenderWithOptions(art, nil, nil, theme, opts) + diffpreview.Summary(art) + "\n"
}
