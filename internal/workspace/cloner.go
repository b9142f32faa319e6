package workspace

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
)

// URLFunc returns the clone URL of a repository.
type URLFunc func(forge.Repo) string

// HTTPSURL returns a URLFunc for https://<host>/<owner>/<name>.git.
func HTTPSURL(host string) URLFunc {
	return func(r forge.Repo) string {
		return fmt.Sprintf("https://%s/%s.git", host, r)
	}
}

// RemoteBinding associates a workspace remote with the repository it
// points at.
type RemoteBinding struct {
	Name string
	Repo forge.Repo
	URL  string

	// Created is false when an existing remote was reused.
	Created bool
}

// bindRemote adds remote unless it is already configured.
func bindRemote(ctx context.Context, v vcs.VCS, dir, name string, repo forge.Repo, url string) (*RemoteBinding, error) {
	existing, err := v.RemoteURL(ctx, dir, name)
	if err == nil {
		if existing != url {
			logging.Debug("reusing remote with a different url", "remote", name, "url", existing, "expected", url)
		}
		return &RemoteBinding{Name: name, Repo: repo, URL: existing}, nil
	}
	if !errors.Is(err, vcs.ErrNoRemote) {
		return nil, err
	}
	if err := v.AddRemote(ctx, dir, name, url); err != nil {
		return nil, err
	}
	return &RemoteBinding{Name: name, Repo: repo, URL: url, Created: true}, nil
}

// cloneCauses are the failure causes a clone error cannot distinguish
// between from its output alone.
var cloneCauses = []string{
	"authentication: the gh credential helper is not configured or the token lacks access (gh auth status)",
	"network: the host could not be reached",
	"fork not ready: a newly created fork can take a while to become cloneable; rerun shortly",
}

// Cloner clones repositories into workspaces.
type Cloner struct {
	vcs    vcs.VCS
	urlFor URLFunc
}

// NewCloner creates a Cloner.
func NewCloner(v vcs.VCS, urlFor URLFunc) *Cloner {
	return &Cloner{vcs: v, urlFor: urlFor}
}

// Clone clones repo into the workspace and ensures origin points at it.
func (c *Cloner) Clone(ctx context.Context, repo forge.Repo, h *Handle) (*RemoteBinding, error) {
	url := c.urlFor(repo)
	logging.Info("cloning", "repo", repo, "path", h.Path)

	if err := c.vcs.Clone(ctx, url, h.Path); err != nil {
		return nil, errors.CloneFailed(repo.String(), err, cloneCauses).
			WithCommand("gh", "repo", "clone", repo.String(), h.Path)
	}

	binding, err := bindRemote(ctx, c.vcs, h.Path, "origin", repo, url)
	if err != nil {
		return nil, errors.CloneFailed(repo.String(), fmt.Errorf("bind origin remote: %w", err), nil)
	}
	if binding.Created {
		logging.Warn("clone did not record an origin remote; added it", "url", url)
	}

	h.Origin = repo
	return binding, nil
}
