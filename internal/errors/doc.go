// Package errors provides typed errors with exit codes for forage-pr.
//
// # Error Types
//
// Error is the base error type. It wraps a cause with an exit code, a Kind
// from the pipeline's failure taxonomy, and the commands a human can run to
// continue manually:
//
//	type Error struct {
//	    Code        int      // Exit code
//	    Kind        Kind     // Taxonomy entry
//	    Message     string   // User-facing message
//	    Cause       error    // Wrapped error
//	    Remediation []string // Shell commands or hints
//	}
//
// # Exit Codes
//
//	ExitSuccess           = 0
//	ExitGeneralError      = 1
//	ExitForkConflict      = 2  // Stale fork must be deleted manually
//	ExitTransient         = 3  // Retries exhausted
//	ExitPermissionDenied  = 4
//	ExitEmptyRepository   = 5
//	ExitHistoryDivergence = 6
//	ExitStaging           = 7  // Nothing to commit or marker ignored
//	ExitSyncTimeout       = 8
//	ExitPullRequest       = 9
//	ExitVerification      = 10 // Branch or PR differs from what was requested
//	ExitConfigError       = 11
//	ExitCloneFailed       = 12
//	ExitBranchFailed      = 13
//	ExitAgentFailed       = 14
//
// # Remediation
//
// Constructors attach remediation where the fix is known. Commands are
// appended with WithCommand, which quotes arguments for pasting into a
// shell:
//
//	errors.HistoryDivergence("main", err).
//	    WithCommand("git", "push", "--force-with-lease", "origin", "main")
//
// GetRemediation walks the chain and returns every line.
package errors
