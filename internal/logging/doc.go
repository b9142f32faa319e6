// Package logging provides logging utilities for forage-pr.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings.
// Console output goes through a tint handler, colored only on terminals
// and never when NO_COLOR is set;
// --json switches to slog's JSON handler:
//
//	logging.Debug("probing fork", "repo", repo)
//	logging.Warn("compare not converged", "attempt", n, "ahead", ahead)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Using fork %s", fork)
//	logging.UserSuccess("Pull request created: %s", url)
//	logging.UserWarning("Pull request #%d is not linked to issue #%d", pr, issue)
//	logging.UserError("%v", err)
//	logging.UserHint("gh pr edit 12 --body 'Fixes #3'")
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError, UserHint: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
