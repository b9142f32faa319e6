// Package vcs wraps the local version control operations the pipeline
// performs on a workspace. Git drives the git binary; MockVCS is an
// in-memory repository graph for tests.
package vcs

import (
	"context"
	"errors"
)

var (
	// ErrNoRemote is returned when the named remote is not configured.
	ErrNoRemote = errors.New("no such remote")

	// ErrNonFastForward is returned when a push was rejected because the
	// remote branch is not an ancestor of the pushed commit.
	ErrNonFastForward = errors.New("push rejected: non-fast-forward")

	// ErrProtectedBranch is returned when the remote refuses to rewrite a
	// protected branch.
	ErrProtectedBranch = errors.New("push rejected: protected branch")

	// ErrStaleLease is returned when a force-with-lease push found the remote
	// branch moved since it was observed.
	ErrStaleLease = errors.New("push rejected: stale lease")
)

// PushOptions configures Push. There is no unconditional force.
type PushOptions struct {
	SetUpstream bool

	// ForceWithLease overwrites the remote branch only if it still points
	// at ExpectedSHA.
	ForceWithLease bool
	ExpectedSHA    string
}

// VCS is the set of local repository operations. dir is the workspace
// root for every call except Clone, where it is the destination.
type VCS interface {
	Clone(ctx context.Context, url, dir string) error

	// RemoteURL returns ErrNoRemote when the remote is not configured.
	RemoteURL(ctx context.Context, dir, remote string) (string, error)
	AddRemote(ctx context.Context, dir, remote, url string) error
	Fetch(ctx context.Context, dir, remote string, refs ...string) error

	// RemoteDefaultBranch asks the remote which branch HEAD points at.
	RemoteDefaultBranch(ctx context.Context, dir, remote string) (string, error)

	CurrentBranch(ctx context.Context, dir string) (string, error)
	Checkout(ctx context.Context, dir, branch string) error

	// CheckoutTracking creates or resets branch to remote/branch and
	// checks it out.
	CheckoutTracking(ctx context.Context, dir, remote, branch string) error
	CreateBranch(ctx context.Context, dir, branch, startPoint string) error
	BranchExists(ctx context.Context, dir, branch string) (bool, error)

	RevParse(ctx context.Context, dir, ref string) (string, error)
	ResetHard(ctx context.Context, dir, ref string) error

	IsIgnored(ctx context.Context, dir, path string) (bool, error)
	Add(ctx context.Context, dir string, paths ...string) error
	HasStagedChanges(ctx context.Context, dir string) (bool, error)
	Commit(ctx context.Context, dir, message string) error

	Push(ctx context.Context, dir, remote, branch string, opts PushOptions) error

	// CommitsAhead counts commits reachable from head and not from base.
	CommitsAhead(ctx context.Context, dir, base, head string) (int, error)
}
