package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/health"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that git, gh and the workspace root are usable",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()
	report := health.Check(cmd.Context(), app.Default.Executor, cfg, paths().WorkspaceRoot(cfg))

	out := cmd.OutOrStdout()
	for _, c := range report.Checks {
		fmt.Fprintf(out, "%-10s %-10s %s\n", c.Name, c.Status, c.Detail)
	}

	if report.Healthy() {
		logSuccess("Ready")
		return nil
	}

	e := errors.New(errors.ExitGeneralError, errors.KindGeneral, fmt.Sprintf("%d preflight checks failed", len(report.Failed())))
	for _, c := range report.Failed() {
		if c.Name == "auth" {
			e.WithCommand(cfg.Provider.GH, "auth", "login", "--hostname", cfg.Provider.Host)
		}
	}
	return e
}
