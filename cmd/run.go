package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/pipeline"
)

var (
	runForkMode           string
	runForkNaming         string
	runAllowAlternateName bool
	runForceWithLease     bool
	runAssignee           string
	runDraft              bool
	runComment            bool
	runKeep               bool
	runAgent              string
	runBranch             string
	runBranchRepo         string
)

var runCmd = &cobra.Command{
	Use:   "run <owner/repo#N | issue-url>",
	Short: "Take an issue all the way to a verified pull request",
	Long: `Runs the full pipeline for one issue.

The pull request is opened from a fork when you cannot push to the
repository (or when --fork-mode=always). The workspace is removed after a
successful run and kept after a failure so the printed commands can be
run from it.

Flags override the matching config file settings for this run only.

Examples:
  forage-pr run octo/app#42
  forage-pr run https://github.com/octo/app/issues/42 --agent "claude -p 'fix it'"
  forage-pr run octo/app#42 --branch issue-42-1f3a9c0d2b4e --keep`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runForkMode, "fork-mode", "", "Fork policy: auto, always or never")
	f.StringVar(&runForkNaming, "fork-naming", "", "Fork name policy: repo or owner-repo")
	f.BoolVar(&runAllowAlternateName, "allow-alternate-name", false, "Also reuse an existing fork found under the alternate name")
	f.BoolVar(&runForceWithLease, "force-with-lease", false, "Allow a force-with-lease push when the fork diverged from upstream")
	f.StringVar(&runAssignee, "assignee", "", "Assign the pull request to this user")
	f.BoolVar(&runDraft, "draft", false, "Open the pull request as a draft")
	f.BoolVar(&runComment, "comment", false, "Comment on the issue with the pull request link")
	f.BoolVar(&runKeep, "keep", false, "Keep the workspace after a successful run")
	f.StringVar(&runAgent, "agent", "", "Agent command to run in the workspace")
	f.StringVar(&runBranch, "branch", "", "Continue an existing task branch")
	f.StringVar(&runBranchRepo, "branch-repo", "", "Repository holding --branch, as owner/name")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overlays the flags that were set on cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("fork-mode") {
		cfg.Fork.Mode = config.ForkMode(runForkMode)
	}
	if f.Changed("fork-naming") {
		cfg.Fork.Naming = naming.ForkNaming(runForkNaming)
	}
	if f.Changed("allow-alternate-name") {
		cfg.Fork.AllowAlternateName = runAllowAlternateName
	}
	if f.Changed("force-with-lease") {
		cfg.Sync.AllowForceWithLease = runForceWithLease
	}
	if f.Changed("assignee") {
		cfg.PullRequest.Assignee = runAssignee
	}
	if f.Changed("draft") {
		cfg.PullRequest.Draft = runDraft
	}
	if f.Changed("comment") {
		cfg.PullRequest.CommentOnIssue = runComment
	}
	if f.Changed("keep") {
		cfg.Workspace.Keep = runKeep
	}
	if f.Changed("agent") {
		cfg.Agent.Command = runAgent
	}
	if err := cfg.Validate(); err != nil {
		return errors.ConfigError("invalid flags", err)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	issue, err := forge.ParseIssueRef(args[0])
	if err != nil {
		return errors.ValidationError(err.Error())
	}

	target := pipeline.Target{Issue: issue}
	if runBranch != "" {
		if err := naming.ValidateBranchName(runBranch); err != nil {
			return errors.ValidationError(err.Error())
		}
		target.Branch = runBranch
	}
	if runBranchRepo != "" {
		if runBranch == "" {
			return errors.ValidationError("--branch-repo requires --branch")
		}
		if target.BranchRepo, err = parseRepo(runBranchRepo); err != nil {
			return err
		}
	}

	if err := applyRunFlags(cmd, currentConfig()); err != nil {
		return err
	}

	p, err := app.Default.Pipeline()
	if err != nil {
		return err
	}

	logInfo("Working on %s", issue)
	res, err := p.Run(cmd.Context(), target)
	if res != nil && res.Publish != nil {
		for _, w := range res.Publish.Warnings {
			logWarning("%s", w)
		}
	}
	if err != nil {
		if res != nil {
			logWarning("Run %s failed at stage %s", res.RunID, res.FailedStage)
			if res.Workspace != nil && !res.WorkspaceRemoved {
				logWarning("Workspace kept at %s", res.Workspace.Path)
			}
		}
		return err
	}

	pr := res.Publish.PullRequest
	logSuccess("Pull request #%d (%s)", pr.Number, res.Publish.State)
	if res.Fork != nil {
		logInfo("Pushed %s to fork %s", res.Branch, res.Fork)
	}
	if res.Workspace != nil && !res.WorkspaceRemoved {
		logInfo("Workspace kept at %s", res.Workspace.Path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), pr.URL)
	return nil
}
