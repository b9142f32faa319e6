package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
)

var forkCmd = &cobra.Command{
	Use:   "fork <owner/repo>",
	Short: "Ensure you have a usable fork of a repository",
	Long: `Checks for a conflicting fork, then finds or creates your fork of the
repository and waits until it is visible. Empty repositories are initialized
when you have push access to them.

Prints the fork name on success.`,
	Args: cobra.ExactArgs(1),
	RunE: runFork,
}

func init() {
	rootCmd.AddCommand(forkCmd)
}

func runFork(cmd *cobra.Command, args []string) error {
	source, err := parseRepo(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	check, err := app.Default.ConflictDetector().Check(ctx, source, user)
	if err != nil {
		return err
	}
	if check.Degraded {
		logWarning("Could not determine the fork root of %s; conflict check skipped", source)
	}

	fork, err := app.Default.Provisioner().EnsureFork(ctx, source, user)
	if err != nil {
		return err
	}

	logSuccess("Fork %s is ready", fork)
	fmt.Fprintln(cmd.OutOrStdout(), fork.String())
	return nil
}
