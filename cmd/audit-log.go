package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/tui"
)

var auditLogCmd = &cobra.Command{
	Use:   "audit-log [run-id]",
	Short: "Display the stage trail of a run",
	Long: `With a run ID, prints every stage event of that run.

Without an argument on a terminal, opens a picker over recorded runs,
newest first: enter prints the selected run, d deletes its log. Otherwise
lists recorded run IDs oldest first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditLog,
}

var auditLogJSON bool

// Replaced in tests.
var (
	isTerminal = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	}
	pickRun = tui.RunPicker
)

func init() {
	auditLogCmd.Flags().BoolVar(&auditLogJSON, "json", false, "Output events as JSON lines")
	rootCmd.AddCommand(auditLogCmd)
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	auditLogger := app.Default.Audit()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := auditLogger.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			logInfo("No runs recorded")
			return nil
		}
		if !auditLogJSON && isTerminal(out) {
			return pickAndShow(out, auditLogger, runs)
		}
		for _, r := range runs {
			fmt.Fprintln(out, r)
		}
		return nil
	}

	run := args[0]
	if err := audit.ValidateRunID(run); err != nil {
		return errors.ValidationError(err.Error())
	}
	return showRun(out, auditLogger, run)
}

func pickAndShow(out io.Writer, auditLogger *audit.Logger, runs []string) error {
	summaries := make([]tui.RunSummary, 0, len(runs))
	for _, id := range runs {
		events, err := auditLogger.Events(id)
		if err != nil {
			logWarning("Skipping run %s: %v", id, err)
			continue
		}
		summaries = append(summaries, tui.Summarize(id, events))
	}

	result, err := pickRun(summaries)
	if err != nil {
		return fmt.Errorf("run picker failed: %w", err)
	}

	switch result.Action {
	case tui.ActionShow:
		return showRun(out, auditLogger, result.Run.ID)
	case tui.ActionRemove:
		if err := auditLogger.Remove(result.Run.ID); err != nil {
			return fmt.Errorf("failed to remove audit log: %w", err)
		}
		logSuccess("Removed audit log for run %s", result.Run.ID)
	}
	return nil
}

func showRun(out io.Writer, auditLogger *audit.Logger, run string) error {
	events, err := auditLogger.Events(run)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		logInfo("No events found for run %s", run)
		return nil
	}

	for _, e := range events {
		if auditLogJSON {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
		} else {
			printEvent(out, e)
		}
	}

	return nil
}

func printEvent(out io.Writer, e audit.Event) {
	ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %-14s", ts, e.Type)
	if e.Stage != "" {
		line += " " + e.Stage
	}
	if e.Duration > 0 {
		line += fmt.Sprintf(" %s", e.Duration)
	}
	if e.Kind != "" {
		line += fmt.Sprintf(" kind=%s exit=%d", e.Kind, e.ExitCode)
	}
	if e.Details != "" {
		line += fmt.Sprintf(" (%s)", e.Details)
	}
	fmt.Fprintln(out, line)
}
