package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
)

var checkForkCmd = &cobra.Command{
	Use:   "check-fork <owner/repo>",
	Short: "Check whether forking a repository would conflict with an existing fork",
	Long: `A forge account holds at most one fork per fork network. Forking a
repository whose root you already forked under another name silently
returns the old fork. check-fork reports that conflict without changing
anything.

Exits with a fork-conflict status when the fork would alias.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckFork,
}

func init() {
	rootCmd.AddCommand(checkForkCmd)
}

func runCheckFork(cmd *cobra.Command, args []string) error {
	target, err := parseRepo(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	res, err := app.Default.ConflictDetector().Check(ctx, target, user)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Degraded {
		logWarning("Fork root of %s could not be determined; no guarantee", target)
		fmt.Fprintln(out, "degraded")
		return nil
	}

	fmt.Fprintf(out, "root: %s\n", res.Root)
	if res.Existing != nil {
		fmt.Fprintf(out, "existing fork: %s\n", res.Existing)
	}
	logSuccess("No fork conflict for %s", target)
	return nil
}
