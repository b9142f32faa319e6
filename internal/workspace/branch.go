package workspace

import (
	"context"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
)

// BranchRequest selects between creating a new task branch and continuing
// an existing one.
type BranchRequest struct {
	// Issue is used in creation mode.
	Issue int
	// Base is the start point in creation mode.
	Base string

	// Existing switches to continuation mode.
	Existing string
	// ExistingRepo is the repository holding Existing. Zero means origin.
	ExistingRepo forge.Repo
}

// BranchManager creates or checks out task branches.
type BranchManager struct {
	vcs    vcs.VCS
	urlFor URLFunc
}

// NewBranchManager creates a BranchManager.
func NewBranchManager(v vcs.VCS, urlFor URLFunc) *BranchManager {
	return &BranchManager{vcs: v, urlFor: urlFor}
}

// CreateOrCheckout dispatches on req and verifies the result.
func (b *BranchManager) CreateOrCheckout(ctx context.Context, h *Handle, req BranchRequest) (string, error) {
	if req.Existing != "" {
		return b.Continue(ctx, h, req.Existing, req.ExistingRepo)
	}
	return b.Create(ctx, h, req.Issue, req.Base)
}

// Create creates issue-<n>-<12 hex> from base and checks it out.
func (b *BranchManager) Create(ctx context.Context, h *Handle, issue int, base string) (string, error) {
	name, err := naming.NewBranchName(issue)
	if err != nil {
		return "", errors.ValidationError(err.Error())
	}
	if err := b.vcs.CreateBranch(ctx, h.Path, name, base); err != nil {
		return "", errors.BranchFailed("create", name, err).
			WithCommand("git", "-C", h.Path, "checkout", "-b", name, base)
	}
	if err := b.verify(ctx, h, name); err != nil {
		return "", err
	}
	logging.Info("branch created", "branch", name, "base", base)
	return name, nil
}

// Continue checks out an existing task branch. A branch held by a fork
// other than origin is fetched through a dedicated fork-<owner> remote.
func (b *BranchManager) Continue(ctx context.Context, h *Handle, branch string, repo forge.Repo) (string, error) {
	if err := naming.ValidateBranchName(branch); err != nil {
		return "", errors.ValidationError(err.Error())
	}

	remote := "origin"
	if !repo.IsZero() && !repo.Equal(h.Origin) {
		remote = "fork-" + repo.Owner
		if _, err := bindRemote(ctx, b.vcs, h.Path, remote, repo, b.urlFor(repo)); err != nil {
			return "", errors.BranchFailed("checkout", branch, err).
				WithCommand("git", "-C", h.Path, "remote", "add", remote, b.urlFor(repo))
		}
		logging.Debug("using cross-fork remote", "remote", remote, "repo", repo)
	}

	if err := b.vcs.Fetch(ctx, h.Path, remote, branch); err != nil {
		return "", errors.BranchFailed("fetch", branch, err).
			WithCommand("git", "-C", h.Path, "ls-remote", "--heads", remote, branch)
	}
	if err := b.vcs.CheckoutTracking(ctx, h.Path, remote, branch); err != nil {
		return "", errors.BranchFailed("checkout", branch, err).
			WithCommand("git", "-C", h.Path, "checkout", "-B", branch, "--track", remote+"/"+branch)
	}
	if err := b.verify(ctx, h, branch); err != nil {
		return "", err
	}
	logging.Info("branch checked out", "branch", branch, "remote", remote)
	return branch, nil
}

// verify re-reads the checked-out branch. A mismatch means the tool
// reported success on the wrong branch.
func (b *BranchManager) verify(ctx context.Context, h *Handle, want string) error {
	got, err := b.vcs.CurrentBranch(ctx, h.Path)
	if err != nil {
		return errors.BranchFailed("verify", want, err).
			WithCommand("git", "-C", h.Path, "branch", "--show-current")
	}
	if got != want {
		return errors.BranchVerification(want, got).
			WithCommand("git", "-C", h.Path, "branch", "--show-current")
	}
	return nil
}
