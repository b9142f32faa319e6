package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
)

var validateBranchCmd = &cobra.Command{
	Use:   "validate-branch <name>",
	Short: "Check that a branch name is a task branch",
	Long: `Task branches are named issue-<number>-<12 hex>. Names with an 8 hex
suffix, created by older releases, are still accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateBranch,
}

func init() {
	rootCmd.AddCommand(validateBranchCmd)
}

func runValidateBranch(cmd *cobra.Command, args []string) error {
	issue, suffix, err := naming.ParseBranchName(args[0])
	if err != nil {
		return errors.ValidationError(err.Error())
	}

	out := cmd.OutOrStdout()
	if len(suffix) == naming.LegacySuffixLen {
		fmt.Fprintf(out, "issue %d, suffix %s (legacy)\n", issue, suffix)
	} else {
		fmt.Fprintf(out, "issue %d, suffix %s\n", issue, suffix)
	}
	return nil
}
