package fork

import (
	"context"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

// CheckResult is the outcome of a conflict check that found no conflict.
type CheckResult struct {
	Root forge.Repo

	// Degraded is set when the root or its forks could not be determined.
	// The check then offers no guarantee.
	Degraded bool

	// Existing is the user's fork of the root, when one was found.
	Existing *forge.Repo
}

// ConflictDetector refuses fork attempts that would alias to a different
// fork already held by the user.
type ConflictDetector struct {
	provider forge.Provider
	resolver *RootResolver
}

// NewConflictDetector creates a ConflictDetector.
func NewConflictDetector(p forge.Provider, r *RootResolver) *ConflictDetector {
	return &ConflictDetector{provider: p, resolver: r}
}

// Check returns a ForkConflict error when user already holds a fork of
// target's root under a different repository than target, and target is not
// the root itself. Conflicts are never resolved automatically.
func (d *ConflictDetector) Check(ctx context.Context, target forge.Repo, user string) (*CheckResult, error) {
	root, ok := d.resolver.Resolve(ctx, target)
	if !ok {
		logging.Warn("could not resolve fork root; proceeding without conflict guarantees", "target", target)
		return &CheckResult{Degraded: true}, nil
	}

	forks, err := d.provider.ListForks(ctx, root)
	if err != nil {
		logging.Warn("could not list forks; proceeding without conflict guarantees", "root", root, "error", err)
		return &CheckResult{Root: root, Degraded: true}, nil
	}

	result := &CheckResult{Root: root}
	for i := range forks {
		if !strings.EqualFold(forks[i].Owner, user) {
			continue
		}
		existing := forks[i]
		result.Existing = &existing
		break
	}

	if result.Existing != nil && !result.Existing.Equal(target) && !target.Equal(root) {
		return nil, errors.ForkConflict(target.String(), root.String(), result.Existing.String())
	}

	logging.Debug("fork conflict check passed", "target", target, "root", root, "existing", result.Existing)
	return result, nil
}
