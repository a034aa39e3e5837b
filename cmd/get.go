package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/loog-project/nmldiff/internal/document"
)

var getCmd = &cobra.Command{
	Use:   "get FILE SELECTOR",
	Short: "Query a configuration file with JSONPath",
	Long: `Print the values selected by a JSONPath expression, e.g.

  nmldiff get namelist_cfg '$.namdom.rn_dt'
  nmldiff get config.yaml '$..nx'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(false)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()

		tree, err := svc.Load(args[0])
		if err != nil {
			return err
		}
		matches, err := document.Query(tree, args[1])
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(matches); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
