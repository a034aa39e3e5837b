package cmd

import (
	"os"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/loog-project/nmldiff/internal/store"
	bboltStore "github.com/loog-project/nmldiff/internal/store/bbolt"
)

var (
	cachedNames []string
	namesOnce   sync.Once
)

var completionCmd = &cobra.Command{
	Use:       "completion [SHELL]",
	Short:     "Prints shell completion scripts",
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			_ = cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			_ = cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			_ = cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			_ = cmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// loadHistoryNames lists the distinct names recorded in the history store.
func loadHistoryNames(path string) ([]string, error) {
	// never create a database just to complete a name
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	s, err := bboltStore.New(path, nil, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	seen := map[string]struct{}{}
	err = s.WalkRecords(func(name string, _ *store.Record) bool {
		seen[name] = struct{}{}
		return true
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func historyNameCompletion(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	namesOnce.Do(func() {
		if names, err := loadHistoryNames(viper.GetString("store")); err == nil {
			cachedNames = names
		}
	})
	return cachedNames, cobra.ShellCompDirectiveNoFileComp
}
