// Package health provides preflight checks run before a pipeline.
//
// The checks verify the tools and local state a run depends on.
//
// # Checks
//
//	git       - the configured git binary answers --version
//	gh        - the configured gh binary answers --version
//	auth      - gh auth status succeeds for provider.host (skipped without gh)
//	workspace - the workspace root can be created and written to
//
// # Usage
//
//	report := health.Check(ctx, exec, cfg, paths.WorkspaceRoot(cfg))
//	if !report.Healthy() {
//	    for _, c := range report.Failed() { ... }
//	}
package health
