package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/workspace"
)

var (
	gcForce     bool
	gcOlderThan time.Duration
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove workspaces left behind by failed or kept runs",
	Long: `Failed runs keep their workspace so the remediation commands can be run
from it. gc removes those workspaces once they are no longer needed.

Without --force, prints what would be removed (dry run).
With --force, actually removes the workspaces.

Workspaces of runs still in progress are never removed. Use --older-than
to also spare workspaces of recently finished runs.`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcForce, "force", false, "Actually remove stale workspaces (default is dry run)")
	gcCmd.Flags().DurationVar(&gcOlderThan, "older-than", 0, "Only consider workspaces last modified before this long ago")
	rootCmd.AddCommand(gcCmd)
}

// staleWorkspaces returns the entries of finished runs last modified before
// cutoff.
func staleWorkspaces(entries []workspace.Entry, cutoff time.Time) []workspace.Entry {
	var out []workspace.Entry
	for _, e := range entries {
		if e.Live {
			logging.Debug("workspace in use", "name", e.Name)
			continue
		}
		if e.ModTime.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func runGC(cmd *cobra.Command, args []string) error {
	mgr := app.Default.Workspaces()

	entries, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to scan workspaces: %w", err)
	}

	stale := staleWorkspaces(entries, time.Now().Add(-gcOlderThan))
	if len(stale) == 0 {
		logInfo("No stale workspaces found")
		return nil
	}

	if !gcForce {
		printGCDryRun(cmd.OutOrStdout(), stale)
		return nil
	}

	removed := 0
	for _, e := range stale {
		logInfo("Removing workspace: %s", e.Name)
		ok, err := mgr.Remove(e.Name)
		if err != nil {
			logWarning("Failed to remove workspace %s: %v", e.Name, err)
			continue
		}
		if !ok {
			logWarning("Workspace %s was claimed by a run; skipped", e.Name)
			continue
		}
		logging.Debug("removed workspace", "path", e.Path)
		removed++
	}

	logSuccess("Garbage collection complete: %d of %d workspaces removed", removed, len(stale))
	return nil
}

func printGCDryRun(out io.Writer, stale []workspace.Entry) {
	fmt.Fprintln(out, "Dry run (use --force to actually clean up):")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Stale workspaces:")
	for _, e := range stale {
		fmt.Fprintf(out, "  %s (modified %s)\n", e.Name, e.ModTime.Local().Format("2006-01-02 15:04"))
	}
}
