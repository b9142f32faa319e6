package workspace

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
)

const upstreamRemote = "upstream"

// UpstreamSyncer aligns a fork's default branch with its upstream.
type UpstreamSyncer struct {
	vcs                 vcs.VCS
	urlFor              URLFunc
	allowForceWithLease bool
}

// NewUpstreamSyncer creates an UpstreamSyncer. allowForceWithLease enables
// overwriting a diverged fork branch.
func NewUpstreamSyncer(v vcs.VCS, urlFor URLFunc, allowForceWithLease bool) *UpstreamSyncer {
	return &UpstreamSyncer{vcs: v, urlFor: urlFor, allowForceWithLease: allowForceWithLease}
}

// Sync resets the workspace's copy of upstream's default branch to
// upstream and pushes it to origin. fork nil means no fork is in play and
// Sync does nothing. The branch checked out beforehand is restored.
func (s *UpstreamSyncer) Sync(ctx context.Context, h *Handle, fork *forge.Repo, upstream forge.Repo) (string, error) {
	if fork == nil {
		logging.Debug("no fork in play; skipping upstream sync")
		return "", nil
	}
	def, err := s.sync(ctx, h, fork, upstream)
	if err == nil {
		return def, nil
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return "", err
	}
	return "", errors.Wrap(errors.ExitGeneralError, errors.KindGeneral, "sync fork with "+upstream.String(), err).
		WithCommand("git", "-C", h.Path, "fetch", upstreamRemote).
		WithCommand("git", "-C", h.Path, "remote", "-v")
}

func (s *UpstreamSyncer) sync(ctx context.Context, h *Handle, fork *forge.Repo, upstream forge.Repo) (string, error) {

	prev, err := s.vcs.CurrentBranch(ctx, h.Path)
	if err != nil {
		return "", err
	}

	binding, err := bindRemote(ctx, s.vcs, h.Path, upstreamRemote, upstream, s.urlFor(upstream))
	if err != nil {
		return "", fmt.Errorf("bind upstream remote: %w", err)
	}
	logging.Debug("upstream remote", "url", binding.URL, "created", binding.Created)

	if err := s.vcs.Fetch(ctx, h.Path, upstreamRemote); err != nil {
		return "", err
	}
	def, err := s.vcs.RemoteDefaultBranch(ctx, h.Path, upstreamRemote)
	if err != nil {
		return "", err
	}

	syncErr := s.syncBranch(ctx, h, def)

	if prev != def && prev != "HEAD" {
		if err := s.vcs.Checkout(ctx, h.Path, prev); err != nil {
			if syncErr == nil {
				return "", fmt.Errorf("restore branch %s: %w", prev, err)
			}
			logging.Warn("could not restore branch after failed sync", "branch", prev, "error", err)
		}
	}
	if syncErr != nil {
		return "", syncErr
	}

	logging.Info("fork synced with upstream", "fork", fork, "branch", def)
	return def, nil
}

func (s *UpstreamSyncer) syncBranch(ctx context.Context, h *Handle, def string) error {
	cur, err := s.vcs.CurrentBranch(ctx, h.Path)
	if err != nil {
		return err
	}
	if cur != def {
		exists, err := s.vcs.BranchExists(ctx, h.Path, def)
		if err != nil {
			return err
		}
		if exists {
			err = s.vcs.Checkout(ctx, h.Path, def)
		} else {
			err = s.vcs.CreateBranch(ctx, h.Path, def, upstreamRemote+"/"+def)
		}
		if err != nil {
			return err
		}
	}

	upstreamRef := upstreamRemote + "/" + def
	if err := s.vcs.ResetHard(ctx, h.Path, upstreamRef); err != nil {
		return err
	}

	err = s.vcs.Push(ctx, h.Path, "origin", def, vcs.PushOptions{})
	if err == nil {
		return nil
	}
	if !errors.Is(err, vcs.ErrNonFastForward) {
		return errors.Wrap(errors.ExitGeneralError, errors.KindGeneral, "push synced "+def+" to fork", err).
			WithCommand("git", "-C", h.Path, "push", "origin", def)
	}
	return s.recoverDivergence(ctx, h, def, err)
}

// recoverDivergence handles a fork branch whose history no longer descends
// from upstream. Without the opt-in it stops with manual instructions; with
// it, it pushes once with a lease on the sha observed on origin.
func (s *UpstreamSyncer) recoverDivergence(ctx context.Context, h *Handle, def string, pushErr error) error {
	if !s.allowForceWithLease {
		return errors.HistoryDivergence(def, pushErr).
			WithHint("upstream history was rewritten; inspect the fork and overwrite its %s only if nothing there must be kept", def).
			WithCommand("git", "-C", h.Path, "fetch", "origin", def).
			WithCommand("git", "-C", h.Path, "push", "--force-with-lease=refs/heads/"+def, "origin", def).
			WithHint("or rerun with --allow-force-with-lease")
	}

	if err := s.vcs.Fetch(ctx, h.Path, "origin", def); err != nil {
		return errors.HistoryDivergence(def, fmt.Errorf("fetch origin before lease push: %w", err)).
			WithCommand("git", "-C", h.Path, "fetch", "origin", def)
	}
	observed, err := s.vcs.RevParse(ctx, h.Path, "origin/"+def)
	if err != nil {
		return errors.HistoryDivergence(def, fmt.Errorf("read origin/%s: %w", def, err)).
			WithCommand("git", "-C", h.Path, "rev-parse", "origin/"+def)
	}
	lease := []string{"git", "-C", h.Path, "push", "--force-with-lease=refs/heads/" + def + ":" + observed, "origin", def}

	logging.Warn("fork history diverged from upstream; overwriting with force-with-lease", "branch", def, "expected", observed)
	err = s.vcs.Push(ctx, h.Path, "origin", def, vcs.PushOptions{ForceWithLease: true, ExpectedSHA: observed})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vcs.ErrProtectedBranch):
		return errors.HistoryDivergence(def, err).
			WithHint("%s is protected on the fork and cannot be overwritten; lift the protection or delete the fork, then rerun", def).
			WithCommand("gh", "api", "-X", "DELETE", fmt.Sprintf("repos/%s/branches/%s/protection", h.Origin, def))
	case errors.Is(err, vcs.ErrStaleLease):
		return errors.HistoryDivergence(def, err).
			WithHint("someone pushed to the fork's %s while syncing; rerun to observe the new state", def).
			WithCommand("git", "-C", h.Path, "fetch", "origin", def)
	default:
		return errors.HistoryDivergence(def, err).
			WithCommand(lease...)
	}
}
