package fork

import (
	"context"
	"fmt"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/retry"
)

const initialFilePath = "README.md"

// Provisioner creates or reuses the user's fork of a repository.
type Provisioner struct {
	provider forge.Provider
	runner   *retry.Runner

	naming         naming.ForkNaming
	allowAlternate bool
	policy         retry.Policy
}

// NewProvisioner creates a Provisioner from the fork and retry settings in cfg.
func NewProvisioner(p forge.Provider, runner *retry.Runner, cfg *config.Config) *Provisioner {
	return &Provisioner{
		provider:       p,
		runner:         runner,
		naming:         cfg.Fork.Naming,
		allowAlternate: cfg.Fork.AllowAlternateName,
		policy:         retry.ExponentialPolicy("fork", cfg.Retry.ForkAttempts, cfg.Retry.ForkBaseDelay),
	}
}

// EnsureFork returns user's fork of source, creating it if needed. The
// returned fork has been read back from the provider.
func (p *Provisioner) EnsureFork(ctx context.Context, source forge.Repo, user string) (forge.Repo, error) {
	candidates := []string{naming.ForkName(p.naming, source.Owner, source.Name)}
	if alt := naming.AlternateForkName(p.naming, source.Owner, source.Name); p.allowAlternate && alt != candidates[0] {
		candidates = append(candidates, alt)
	}

	if fork, ok := p.lookup(ctx, source, user, candidates); ok {
		logging.Info("reusing existing fork", "fork", fork, "source", source)
		return fork, nil
	}

	fork, err := p.create(ctx, source, user, candidates)
	if err != nil {
		return forge.Repo{}, err
	}

	if err := p.awaitVisible(ctx, fork); err != nil {
		return forge.Repo{}, err
	}
	logging.Info("fork ready", "fork", fork, "source", source)
	return fork, nil
}

// lookup looks for an existing fork of source under each candidate name.
func (p *Provisioner) lookup(ctx context.Context, source forge.Repo, user string, candidates []string) (forge.Repo, bool) {
	for _, name := range candidates {
		repo := forge.Repo{Owner: user, Name: name}
		meta, err := p.provider.RepositoryMeta(ctx, repo)
		if err != nil {
			if !errors.Is(err, forge.ErrNotFound) {
				logging.Debug("fork lookup failed", "repo", repo, "error", err)
			}
			continue
		}
		if !isForkOf(meta, source) {
			logging.Warn("repository with the fork name exists but is not a fork of the source", "repo", repo, "source", source)
			continue
		}
		return meta.Repo, true
	}
	return forge.Repo{}, false
}

func isForkOf(meta *forge.RepoMeta, source forge.Repo) bool {
	if !meta.IsFork {
		return false
	}
	if meta.Parent != nil && meta.Parent.Equal(source) {
		return true
	}
	return meta.Source != nil && meta.Source.Equal(source)
}

// create runs the creation loop. Each retry first looks again, since a
// concurrent worker may have created the fork in the meantime.
func (p *Provisioner) create(ctx context.Context, source forge.Repo, user string, candidates []string) (forge.Repo, error) {
	var (
		fork       forge.Repo
		remediated bool
	)

	err := p.runner.Run(ctx, p.policy, func(attempt int) error {
		if attempt > 1 {
			if found, ok := p.lookup(ctx, source, user, candidates); ok {
				logging.Info("fork appeared while retrying", "fork", found, "attempt", attempt)
				fork = found
				return nil
			}
		}

		out := p.provider.CreateFork(ctx, source, forge.ForkOptions{Name: candidates[0], DefaultBranchOnly: true})
		logging.Debug("fork attempt", "source", source, "attempt", attempt, "status", out.Status, "reason", out.Reason)

		switch out.Status {
		case forge.ForkCreated:
			fork = out.Fork
			return nil

		case forge.ForkExists:
			if !out.Fork.IsZero() {
				fork = out.Fork
				return nil
			}
			if found, ok := p.lookup(ctx, source, user, candidates); ok {
				fork = found
				return nil
			}
			return fmt.Errorf("fork of %s reported as existing but not yet visible", source)

		case forge.ForkEmpty:
			if remediated {
				return fmt.Errorf("%s still reported empty after initialization: %s", source, out.Reason)
			}
			remediated = true
			return p.initialize(ctx, source)

		case forge.ForkPermission:
			return retry.Permanent(errors.PermissionDenied("fork "+source.String(), fmt.Errorf("%s", out.Reason)).
				WithHint("request access to %s, or fork it manually and rerun", source).
				WithCommand("gh", "repo", "fork", source.String(), "--clone=false"))

		default:
			return fmt.Errorf("fork of %s: %s", source, out.Reason)
		}
	})
	if err != nil {
		manual := []string{"gh", "repo", "fork", source.String(), "--clone=false"}
		if candidates[0] != source.Name {
			manual = append(manual, "--fork-name", candidates[0])
		}
		return forge.Repo{}, p.escalate("fork creation of "+source.String(), err, manual...)
	}
	return fork, nil
}

// initialize gives an empty source repository a first commit so it can be
// forked. It returns a retryable error on success so the loop tries again.
func (p *Provisioner) initialize(ctx context.Context, source forge.Repo) error {
	logging.Warn("source repository is empty; creating an initial commit", "repo", source)
	content := []byte(fmt.Sprintf("# %s\n", source.Name))
	err := p.provider.CreateFileContent(ctx, source, initialFilePath, content, "Initial commit")
	if errors.Is(err, forge.ErrPermission) {
		return retry.Permanent(errors.EmptyRepository(source.String(), err))
	}
	if err != nil {
		return fmt.Errorf("initialize %s: %w", source, err)
	}
	return fmt.Errorf("initialized empty repository %s; retrying fork", source)
}

// awaitVisible polls until the fork is readable; creation responses can
// precede read visibility.
func (p *Provisioner) awaitVisible(ctx context.Context, fork forge.Repo) error {
	policy := p.policy
	policy.Name = "fork visibility"
	err := p.runner.Run(ctx, policy, func(attempt int) error {
		_, err := p.provider.RepositoryMeta(ctx, fork)
		return err
	})
	if err != nil {
		return p.escalate("fork visibility check of "+fork.String(), err, "gh", "repo", "view", fork.String())
	}
	return nil
}

// escalate converts an exhausted retry loop into a TransientExhausted error
// that suggests manual, and passes fatal errors through.
func (p *Provisioner) escalate(op string, err error, manual ...string) error {
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return errors.TransientExhausted(op, ex.Attempts, ex.Err).
			WithHint("the provider may still be catching up; check again shortly").
			WithCommand(manual...)
	}
	return err
}
