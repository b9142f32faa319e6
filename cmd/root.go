package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "forage-pr",
	Short: "Turn issues into verified pull requests",
	Long: `forage-pr takes an issue through fork, branch and pull request.

Each run:
  - Checks for fork conflicts and forks when it cannot push directly
  - Clones into a fresh workspace and syncs the fork with upstream
  - Creates a task branch and runs the configured agent
  - Pushes, waits for the forge to see the commit, opens the pull
    request and verifies that it links the issue

Every stage that fails stops the run and prints the commands needed to
continue by hand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		_, err := app.Default.LoadConfig(configPath)
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/forage-pr/config.toml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
