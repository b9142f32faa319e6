// Package forge is the code-hosting provider boundary: repository metadata,
// forks, branches, comparisons and pull requests. The production
// implementation drives the gh CLI; MockProvider is an in-memory forge with
// configurable read-after-write lag.
package forge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when the object is absent or not yet visible.
	ErrNotFound = errors.New("not found")

	// ErrPermission is returned when the viewer may not perform the write.
	ErrPermission = errors.New("permission denied")

	// ErrAssigneeInvalid is returned when a pull request assignee cannot be
	// assigned, typically because they are not a collaborator.
	ErrAssigneeInvalid = errors.New("assignee cannot be assigned")

	// ErrNoCommitsBetween is returned when the provider rejects a pull
	// request because head has no commits over base.
	ErrNoCommitsBetween = errors.New("no commits between base and head")

	// ErrAlreadyExists is returned when a pull request for the head already
	// exists.
	ErrAlreadyExists = errors.New("already exists")
)

// Repo identifies a repository by owner and name.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// Equal compares owner and name case-insensitively, as the provider does.
func (r Repo) Equal(o Repo) bool {
	return strings.EqualFold(r.Owner, o.Owner) && strings.EqualFold(r.Name, o.Name)
}

// IsZero reports whether r is unset.
func (r Repo) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// ParseRepo parses "owner/name".
func ParseRepo(s string) (Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSuffix(s, ".git"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

// RepoMeta is the subset of repository metadata the pipeline reads.
type RepoMeta struct {
	Repo          Repo
	IsFork        bool
	Parent        *Repo
	Source        *Repo // root of the fork network, set when IsFork
	DefaultBranch string
	CanPush       bool
}

// Branch is a remote branch head.
type Branch struct {
	Name string
	SHA  string
}

// Comparison is the result of comparing base...head.
type Comparison struct {
	Status   string // "ahead", "behind", "diverged", "identical"
	AheadBy  int
	BehindBy int
}

// PullRequest is a pull request as re-read from the provider.
type PullRequest struct {
	Number    int
	URL       string
	State     string
	IsDraft   bool
	HeadRef   string
	HeadOwner string
	BaseRef   string
}

// PullRequestSpec describes a pull request to create.
type PullRequestSpec struct {
	Base      string
	Head      string // branch name
	HeadOwner string // set for cross-repository pull requests
	Title     string
	Body      string
	Assignee  string
	Draft     bool
}

// HeadRef returns the head in owner:branch form when cross-repository.
func (s PullRequestSpec) HeadRef() string {
	if s.HeadOwner != "" {
		return s.HeadOwner + ":" + s.Head
	}
	return s.Head
}

// Issue is a tracked issue.
type Issue struct {
	Number int
	Title  string
	State  string
	URL    string
}

// IssueRef points at an issue in a repository.
type IssueRef struct {
	Repo   Repo
	Number int
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.Number)
}

// ParseIssueRef accepts "owner/name#N" or an issue URL such as
// https://github.com/owner/name/issues/N.
func ParseIssueRef(s string) (IssueRef, error) {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return IssueRef{}, fmt.Errorf("invalid issue URL %q: %w", s, err)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 4 || parts[2] != "issues" {
			return IssueRef{}, fmt.Errorf("invalid issue URL %q: expected /owner/name/issues/N", s)
		}
		n, err := strconv.Atoi(parts[3])
		if err != nil || n <= 0 {
			return IssueRef{}, fmt.Errorf("invalid issue number in %q", s)
		}
		return IssueRef{Repo: Repo{Owner: parts[0], Name: parts[1]}, Number: n}, nil
	}

	repoPart, numPart, ok := strings.Cut(s, "#")
	if !ok {
		return IssueRef{}, fmt.Errorf("invalid issue %q: expected owner/name#N", s)
	}
	repo, err := ParseRepo(repoPart)
	if err != nil {
		return IssueRef{}, err
	}
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return IssueRef{}, fmt.Errorf("invalid issue number in %q", s)
	}
	return IssueRef{Repo: repo, Number: n}, nil
}

// ForkStatus classifies a fork creation attempt.
type ForkStatus int

const (
	ForkCreated ForkStatus = iota
	ForkExists
	ForkTransient
	ForkPermission
	ForkEmpty
)

func (s ForkStatus) String() string {
	switch s {
	case ForkCreated:
		return "created"
	case ForkExists:
		return "exists"
	case ForkTransient:
		return "transient"
	case ForkPermission:
		return "permission"
	case ForkEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// ForkOutcome is the tagged result of CreateFork. Fork is set for Created
// and Exists; Reason carries the provider diagnostic otherwise.
type ForkOutcome struct {
	Status ForkStatus
	Fork   Repo
	Reason string
}

// ForkOptions configures fork creation.
type ForkOptions struct {
	Name              string
	DefaultBranchOnly bool
}

// Provider is the code-hosting provider. Reads may lag writes made moments
// earlier, by this process or any other.
type Provider interface {
	RepositoryMeta(ctx context.Context, repo Repo) (*RepoMeta, error)

	// ListForks returns every fork of repo, following pagination.
	ListForks(ctx context.Context, repo Repo) ([]Repo, error)

	CurrentUser(ctx context.Context) (string, error)

	// CreateFork never returns an error; failures are classified in the
	// outcome.
	CreateFork(ctx context.Context, repo Repo, opts ForkOptions) ForkOutcome

	GetBranch(ctx context.Context, repo Repo, branch string) (*Branch, error)

	// Compare compares base...head in repo. head may be owner:branch.
	Compare(ctx context.Context, repo Repo, base, head string) (*Comparison, error)

	CreateFileContent(ctx context.Context, repo Repo, path string, content []byte, message string) error

	// CreatePullRequest returns the provider's claim about the new pull
	// request. Callers must re-read it with GetPullRequest.
	CreatePullRequest(ctx context.Context, repo Repo, spec PullRequestSpec) (*PullRequest, error)

	GetPullRequest(ctx context.Context, repo Repo, number int) (*PullRequest, error)

	// FindPullRequest returns the open pull request for head, if any.
	FindPullRequest(ctx context.Context, repo Repo, headOwner, head string) (*PullRequest, error)

	// LinkedIssues returns the issues the pull request closes, from the
	// provider's cross-reference data.
	LinkedIssues(ctx context.Context, repo Repo, number int) ([]IssueRef, error)

	PostIssueComment(ctx context.Context, repo Repo, issue int, body string) error

	GetIssue(ctx context.Context, repo Repo, number int) (*Issue, error)
}
