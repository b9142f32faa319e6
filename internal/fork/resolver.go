package fork

import (
	"context"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

// RootResolver finds the non-fork repository at the top of a fork chain.
type RootResolver struct {
	provider forge.Provider
}

// NewRootResolver creates a RootResolver.
func NewRootResolver(p forge.Provider) *RootResolver {
	return &RootResolver{provider: p}
}

// Resolve returns the root of repo's fork network. ok is false when the
// provider could not answer; callers must treat that as unknown, not as
// "repo is its own root".
func (r *RootResolver) Resolve(ctx context.Context, repo forge.Repo) (root forge.Repo, ok bool) {
	meta, err := r.provider.RepositoryMeta(ctx, repo)
	if err != nil {
		logging.Debug("root resolution failed", "repo", repo, "error", err)
		return forge.Repo{}, false
	}
	if !meta.IsFork {
		return repo, true
	}
	if meta.Source != nil {
		return *meta.Source, true
	}
	if meta.Parent != nil {
		// Parent is only the next hop; without a source the root is unknown.
		logging.Debug("fork without source metadata", "repo", repo, "parent", *meta.Parent)
	}
	return forge.Repo{}, false
}
