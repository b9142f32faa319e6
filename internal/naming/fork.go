package naming

import "fmt"

// ForkNaming selects the repository name used for a new fork.
type ForkNaming string

const (
	// ForkNamingRepo names the fork after the source repository.
	ForkNamingRepo ForkNaming = "repo"

	// ForkNamingOwnerRepo prefixes the source owner: <owner>-<repo>.
	ForkNamingOwnerRepo ForkNaming = "owner-repo"
)

// Validate checks the policy is known.
func (n ForkNaming) Validate() error {
	switch n {
	case ForkNamingRepo, ForkNamingOwnerRepo:
		return nil
	default:
		return fmt.Errorf("invalid fork naming %q (must be %s or %s)", n, ForkNamingRepo, ForkNamingOwnerRepo)
	}
}

// ForkName returns the fork repository name for owner/repo under n.
func ForkName(n ForkNaming, owner, repo string) string {
	if n == ForkNamingOwnerRepo {
		return owner + "-" + repo
	}
	return repo
}

// AlternateForkName returns the name the other policy would have produced.
func AlternateForkName(n ForkNaming, owner, repo string) string {
	if n == ForkNamingOwnerRepo {
		return ForkName(ForkNamingRepo, owner, repo)
	}
	return ForkName(ForkNamingOwnerRepo, owner, repo)
}
