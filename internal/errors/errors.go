package errors

import (
	"errors"
	"fmt"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// Exit codes for forage-pr
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitForkConflict      = 2
	ExitTransient         = 3
	ExitPermissionDenied  = 4
	ExitEmptyRepository   = 5
	ExitHistoryDivergence = 6
	ExitStaging           = 7
	ExitSyncTimeout       = 8
	ExitPullRequest       = 9
	ExitVerification      = 10
	ExitConfigError       = 11
	ExitCloneFailed       = 12
	ExitBranchFailed      = 13
	ExitAgentFailed       = 14
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindGeneral           Kind = "general"
	KindForkConflict      Kind = "fork-conflict"
	KindTransient         Kind = "transient-provider-error"
	KindPermissionDenied  Kind = "permission-denied"
	KindEmptyRepository   Kind = "empty-repository"
	KindHistoryDivergence Kind = "history-divergence"
	KindNothingToCommit   Kind = "nothing-to-commit"
	KindPathIgnored       Kind = "path-ignored"
	KindSyncTimeout       Kind = "sync-timeout"
	KindNoCommits         Kind = "no-commits-between-branches"
	KindPullRequest       Kind = "pull-request-creation"
	KindVerification      Kind = "verification-mismatch"
	KindConfig            Kind = "config"
	KindClone             Kind = "clone"
	KindBranch            Kind = "branch"
	KindAgent             Kind = "agent"
	KindValidation        Kind = "validation"
)

// Error is the base error type for forage-pr. Remediation holds the shell
// commands a human can run to continue manually.
type Error struct {
	Code        int
	Kind        Kind
	Message     string
	Cause       error
	Remediation []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *Error) ExitCode() int {
	return e.Code
}

// WithCommand appends a remediation command, quoting each argument.
func (e *Error) WithCommand(args ...string) *Error {
	e.Remediation = append(e.Remediation, shellquote.Join(args...))
	return e
}

// WithHint appends a free-form remediation line.
func (e *Error) WithHint(format string, args ...any) *Error {
	e.Remediation = append(e.Remediation, fmt.Sprintf(format, args...))
	return e
}

// New creates a new Error
func New(code int, kind Kind, message string) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error with an Error
func Wrap(code int, kind Kind, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// ForkConflict reports that the account already holds the single fork slot
// for root under a different name than target.
func ForkConflict(target, root, existing string) *Error {
	e := New(ExitForkConflict, KindForkConflict,
		fmt.Sprintf("fork conflict: you already have fork %s of root %s; forking %s would alias to it", existing, root, target))
	e.WithHint("delete the stale fork before retrying (this is never done automatically)")
	e.WithCommand("gh", "repo", "delete", existing, "--yes")
	return e
}

// TransientExhausted reports a retried operation that never succeeded.
func TransientExhausted(op string, attempts int, cause error) *Error {
	return Wrap(ExitTransient, KindTransient, fmt.Sprintf("%s failed after %d attempts", op, attempts), cause)
}

// PermissionDenied reports a provider permission failure.
func PermissionDenied(op string, cause error) *Error {
	return Wrap(ExitPermissionDenied, KindPermissionDenied, fmt.Sprintf("permission denied: %s", op), cause)
}

// EmptyRepository reports a source repository with no commits that could not
// be initialized automatically.
func EmptyRepository(repo string, cause error) *Error {
	e := Wrap(ExitEmptyRepository, KindEmptyRepository, fmt.Sprintf("repository %s has no commits and could not be initialized", repo), cause)
	e.WithHint("ask a maintainer of %s to push an initial commit, then retry", repo)
	return e
}

// HistoryDivergence reports a fork branch that diverged from upstream.
func HistoryDivergence(branch string, cause error) *Error {
	return Wrap(ExitHistoryDivergence, KindHistoryDivergence,
		fmt.Sprintf("fork branch %s has diverged from upstream", branch), cause)
}

// NothingToCommit reports that staging produced no changes.
func NothingToCommit(path string) *Error {
	e := New(ExitStaging, KindNothingToCommit, fmt.Sprintf("nothing to commit after staging %s", path))
	e.WithHint("the branch already contains this marker; inspect it with the command below")
	e.WithCommand("git", "status", "--short")
	return e
}

// PathIgnored reports that every marker candidate is excluded by ignore rules.
func PathIgnored(paths ...string) *Error {
	e := New(ExitStaging, KindPathIgnored, fmt.Sprintf("marker paths are ignored by the repository: %s", strings.Join(paths, ", ")))
	for _, p := range paths {
		e.WithCommand("git", "check-ignore", "-v", p)
	}
	return e
}

// SyncTimeout reports that the comparison endpoint never showed the head
// ahead of base.
func SyncTimeout(base, head string, attempts int) *Error {
	return New(ExitSyncTimeout, KindSyncTimeout,
		fmt.Sprintf("comparison %s...%s reported no commits ahead after %d attempts; refusing to create pull request", base, head, attempts))
}

// NoCommitsBetween reports a pull request rejected for an empty diff.
func NoCommitsBetween(base, head string, cause error) *Error {
	return Wrap(ExitPullRequest, KindNoCommits, fmt.Sprintf("no commits between %s and %s", base, head), cause)
}

// PullRequestFailed reports a generic pull request creation failure.
func PullRequestFailed(message string, cause error) *Error {
	return Wrap(ExitPullRequest, KindPullRequest, message, cause)
}

// BranchVerification reports that the checked-out branch is not the one
// requested.
func BranchVerification(want, got string) *Error {
	e := New(ExitVerification, KindVerification, fmt.Sprintf("branch verification failed: expected %s, on %s", want, got))
	e.WithCommand("git", "checkout", want)
	return e
}

// PullRequestVerification reports a pull request whose state differs from
// what was requested.
func PullRequestVerification(message string) *Error {
	return New(ExitVerification, KindVerification, message)
}

// PushVerification reports a pushed branch that the provider shows at a
// different commit than the one pushed.
func PushVerification(repo, branch, local, remote string) *Error {
	return New(ExitVerification, KindVerification, fmt.Sprintf("%s on %s is at %s, pushed %s", branch, repo, remote, local))
}

// BranchFailed reports a branch creation or checkout failure.
func BranchFailed(op, branch string, cause error) *Error {
	return Wrap(ExitBranchFailed, KindBranch, fmt.Sprintf("branch %s %s failed", op, branch), cause)
}

// CloneFailed reports a clone failure along with every plausible cause.
func CloneFailed(repo string, cause error, causes []string) *Error {
	e := Wrap(ExitCloneFailed, KindClone, fmt.Sprintf("clone of %s failed", repo), cause)
	for _, c := range causes {
		e.WithHint("possible cause: %s", c)
	}
	return e
}

// AgentFailed reports that the external coding agent did not succeed.
func AgentFailed(cause error) *Error {
	return Wrap(ExitAgentFailed, KindAgent, "agent run failed", cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *Error {
	return Wrap(ExitConfigError, KindConfig, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *Error {
	return New(ExitGeneralError, KindValidation, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return ExitGeneralError
}

// KindOf returns the Kind of the first Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneral
}

// GetRemediation collects remediation lines from every Error in the chain,
// outermost first.
func GetRemediation(err error) []string {
	var out []string
	for err != nil {
		if e, ok := err.(*Error); ok {
			out = append(out, e.Remediation...)
		}
		err = errors.Unwrap(err)
	}
	return out
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
