package forge

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var closesRe = regexp.MustCompile(`(?i)\b(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s+#(\d+)\b`)

// MockRepo is a repository held by MockProvider.
type MockRepo struct {
	Meta     RepoMeta
	Branches map[string]string // name -> sha
	Files    map[string][]byte
	Empty    bool

	// hiddenReads is how many more reads report ErrNotFound.
	hiddenReads int
}

// MockProvider is an in-memory Provider for testing. Newly created forks
// stay invisible to reads for VisibilityLag calls, like a provider whose
// read endpoints trail its write endpoints.
type MockProvider struct {
	mu sync.Mutex

	User string

	Repos map[string]*MockRepo

	// VisibilityLag is the number of RepositoryMeta reads a fork created by
	// CreateFork stays hidden for.
	VisibilityLag int

	// ForkOutcomes scripts CreateFork results in order. Once drained,
	// CreateFork behaves like the real provider.
	ForkOutcomes []ForkOutcome

	// OnCreateFork runs before each CreateFork with the 1-based call count,
	// without the lock held. Tests use it to play a concurrent worker.
	OnCreateFork func(call int)

	// CompareResults scripts Compare results in order; the last is reused.
	// When empty, Compare reports one commit ahead.
	CompareResults []Comparison

	// CreatePRErrors scripts CreatePullRequest failures in order.
	CreatePRErrors []error

	// Collaborators lists assignable users. Assigning anyone else fails
	// with ErrAssigneeInvalid.
	Collaborators map[string]bool

	// HidePullRequests makes GetPullRequest report ErrNotFound.
	HidePullRequests bool

	// RemoteBranches, when set, answers GetBranch in place of Repos, so
	// a test can show the forge what was pushed through git.
	RemoteBranches func(repo Repo, branch string) string

	// NoAutoLink disables linking issues from closing keywords in bodies.
	NoAutoLink bool

	PullRequests map[int]*MockPullRequest
	Issues       map[int]*Issue
	Comments     map[int][]string

	// Errors allows injecting errors for specific methods
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	forkCalls int
	nextPR    int
}

// MockPullRequest is a pull request held by MockProvider.
type MockPullRequest struct {
	PullRequest
	Repo     Repo
	Title    string
	Body     string
	Assignee string
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []any
}

// NewMockProvider creates an empty forge where user is the viewer.
func NewMockProvider(user string) *MockProvider {
	return &MockProvider{
		User:          user,
		Repos:         make(map[string]*MockRepo),
		Collaborators: make(map[string]bool),
		PullRequests:  make(map[int]*MockPullRequest),
		Issues:        make(map[int]*Issue),
		Comments:      make(map[int][]string),
		Errors:        make(map[string]error),
		CallLog:       make([]MockCall, 0),
	}
}

func (m *MockProvider) record(method string, args ...any) error {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
	return m.Errors[method]
}

// SetError sets an error to be returned for a specific method
func (m *MockProvider) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method] = err
}

// Calls returns the number of recorded calls to method.
func (m *MockProvider) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.CallLog {
		if c.Method == method {
			n++
		}
	}
	return n
}

// AddRepo adds a visible, non-fork repository with a main branch.
func (m *MockProvider) AddRepo(repo Repo, canPush bool) *MockRepo {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &MockRepo{
		Meta:     RepoMeta{Repo: repo, DefaultBranch: "main", CanPush: canPush},
		Branches: map[string]string{"main": "0000000000000000000000000000000000000001"},
		Files:    make(map[string][]byte),
	}
	m.Repos[repo.String()] = r
	return r
}

// AddFork adds a visible fork of parent.
func (m *MockProvider) AddFork(parent, fork Repo) *MockRepo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addForkLocked(parent, fork)
}

func (m *MockProvider) addForkLocked(parent, fork Repo) *MockRepo {
	root := parent
	if p, ok := m.Repos[parent.String()]; ok && p.Meta.Source != nil {
		root = *p.Meta.Source
	}
	r := &MockRepo{
		Meta: RepoMeta{
			Repo:          fork,
			IsFork:        true,
			Parent:        &parent,
			Source:        &root,
			DefaultBranch: "main",
			CanPush:       fork.Owner == m.User,
		},
		Branches: map[string]string{"main": "0000000000000000000000000000000000000001"},
		Files:    make(map[string][]byte),
	}
	m.Repos[fork.String()] = r
	return r
}

// Repo returns the stored repository, or nil.
func (m *MockProvider) Repo(repo Repo) *MockRepo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Repos[repo.String()]
}

func (m *MockProvider) RepositoryMeta(ctx context.Context, repo Repo) (*RepoMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RepositoryMeta", repo); err != nil {
		return nil, err
	}
	r, ok := m.Repos[repo.String()]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", repo, ErrNotFound)
	}
	if r.hiddenReads > 0 {
		r.hiddenReads--
		return nil, fmt.Errorf("repository %s: %w", repo, ErrNotFound)
	}
	meta := r.Meta
	return &meta, nil
}

// ListForks returns every visible fork in repo's network, which is what a
// fork-slot check needs.
func (m *MockProvider) ListForks(ctx context.Context, repo Repo) ([]Repo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ListForks", repo); err != nil {
		return nil, err
	}
	var out []Repo
	for _, r := range m.Repos {
		if !r.Meta.IsFork || r.hiddenReads > 0 {
			continue
		}
		if *r.Meta.Parent == repo || *r.Meta.Source == repo {
			out = append(out, r.Meta.Repo)
		}
	}
	return out, nil
}

func (m *MockProvider) CurrentUser(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CurrentUser"); err != nil {
		return "", err
	}
	return m.User, nil
}

func (m *MockProvider) CreateFork(ctx context.Context, repo Repo, opts ForkOptions) ForkOutcome {
	m.mu.Lock()
	m.forkCalls++
	call := m.forkCalls
	hook := m.OnCreateFork
	m.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateFork", repo, opts); err != nil {
		return ForkOutcome{Status: ForkTransient, Reason: err.Error()}
	}

	if len(m.ForkOutcomes) > 0 {
		out := m.ForkOutcomes[0]
		m.ForkOutcomes = m.ForkOutcomes[1:]
		if (out.Status == ForkCreated || out.Status == ForkExists) && !out.Fork.IsZero() {
			if _, ok := m.Repos[out.Fork.String()]; !ok {
				m.addForkLocked(repo, out.Fork).hiddenReads = m.VisibilityLag
			}
		}
		return out
	}

	src, ok := m.Repos[repo.String()]
	if !ok {
		return ForkOutcome{Status: ForkPermission, Reason: "Not Found (HTTP 404)"}
	}
	if src.Empty {
		return ForkOutcome{Status: ForkEmpty, Reason: "The repository exists, but it contains no Git content. Empty repositories cannot be forked."}
	}

	// One fork per network per account; the provider returns the existing one.
	root := repo
	if src.Meta.Source != nil {
		root = *src.Meta.Source
	}
	for _, r := range m.Repos {
		if r.Meta.IsFork && r.Meta.Repo.Owner == m.User && *r.Meta.Source == root {
			return ForkOutcome{Status: ForkCreated, Fork: r.Meta.Repo}
		}
	}

	name := opts.Name
	if name == "" {
		name = repo.Name
	}
	fork := Repo{Owner: m.User, Name: name}
	m.addForkLocked(repo, fork).hiddenReads = m.VisibilityLag
	return ForkOutcome{Status: ForkCreated, Fork: fork}
}

func (m *MockProvider) GetBranch(ctx context.Context, repo Repo, branch string) (*Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetBranch", repo, branch); err != nil {
		return nil, err
	}
	if m.RemoteBranches != nil {
		if sha := m.RemoteBranches(repo, branch); sha != "" {
			return &Branch{Name: branch, SHA: sha}, nil
		}
		return nil, fmt.Errorf("branch %s: %w", branch, ErrNotFound)
	}
	r, ok := m.Repos[repo.String()]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", repo, ErrNotFound)
	}
	sha, ok := r.Branches[branch]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branch, ErrNotFound)
	}
	return &Branch{Name: branch, SHA: sha}, nil
}

func (m *MockProvider) Compare(ctx context.Context, repo Repo, base, head string) (*Comparison, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Compare", repo, base, head); err != nil {
		return nil, err
	}
	if len(m.CompareResults) == 0 {
		return &Comparison{Status: "ahead", AheadBy: 1}, nil
	}
	c := m.CompareResults[0]
	if len(m.CompareResults) > 1 {
		m.CompareResults = m.CompareResults[1:]
	}
	return &c, nil
}

func (m *MockProvider) CreateFileContent(ctx context.Context, repo Repo, path string, content []byte, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateFileContent", repo, path, message); err != nil {
		return err
	}
	r, ok := m.Repos[repo.String()]
	if !ok {
		return fmt.Errorf("write %s: %w", path, ErrPermission)
	}
	if !r.Meta.CanPush {
		return fmt.Errorf("write %s to %s: %w", path, repo, ErrPermission)
	}
	r.Files[path] = content
	r.Empty = false
	return nil
}

func (m *MockProvider) CreatePullRequest(ctx context.Context, repo Repo, spec PullRequestSpec) (*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreatePullRequest", repo, spec); err != nil {
		return nil, err
	}
	if len(m.CreatePRErrors) > 0 {
		err := m.CreatePRErrors[0]
		m.CreatePRErrors = m.CreatePRErrors[1:]
		return nil, err
	}
	if spec.Assignee != "" && !m.Collaborators[spec.Assignee] {
		return nil, fmt.Errorf("create pull request: %w: %s", ErrAssigneeInvalid, spec.Assignee)
	}
	for _, pr := range m.PullRequests {
		if pr.Repo == repo && pr.HeadRef == spec.Head && pr.HeadOwner == spec.HeadOwner && pr.State == "OPEN" {
			return nil, fmt.Errorf("create pull request: %w", ErrAlreadyExists)
		}
	}

	m.nextPR++
	pr := &MockPullRequest{
		PullRequest: PullRequest{
			Number:    m.nextPR,
			URL:       fmt.Sprintf("https://github.com/%s/pull/%d", repo, m.nextPR),
			State:     "OPEN",
			IsDraft:   spec.Draft,
			HeadRef:   spec.Head,
			HeadOwner: spec.HeadOwner,
			BaseRef:   spec.Base,
		},
		Repo:     repo,
		Title:    spec.Title,
		Body:     spec.Body,
		Assignee: spec.Assignee,
	}
	m.PullRequests[pr.Number] = pr
	created := pr.PullRequest
	return &created, nil
}

func (m *MockProvider) GetPullRequest(ctx context.Context, repo Repo, number int) (*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetPullRequest", repo, number); err != nil {
		return nil, err
	}
	pr, ok := m.PullRequests[number]
	if !ok || m.HidePullRequests || pr.Repo != repo {
		return nil, fmt.Errorf("pull request #%d: %w", number, ErrNotFound)
	}
	out := pr.PullRequest
	return &out, nil
}

func (m *MockProvider) FindPullRequest(ctx context.Context, repo Repo, headOwner, head string) (*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FindPullRequest", repo, headOwner, head); err != nil {
		return nil, err
	}
	for _, pr := range m.PullRequests {
		if pr.Repo == repo && pr.HeadRef == head && pr.State == "OPEN" &&
			(headOwner == "" || strings.EqualFold(pr.HeadOwner, headOwner)) {
			out := pr.PullRequest
			return &out, nil
		}
	}
	return nil, fmt.Errorf("pull request for %s: %w", head, ErrNotFound)
}

func (m *MockProvider) LinkedIssues(ctx context.Context, repo Repo, number int) ([]IssueRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("LinkedIssues", repo, number); err != nil {
		return nil, err
	}
	pr, ok := m.PullRequests[number]
	if !ok {
		return nil, fmt.Errorf("pull request #%d: %w", number, ErrNotFound)
	}
	if m.NoAutoLink {
		return nil, nil
	}
	var refs []IssueRef
	for _, match := range closesRe.FindAllStringSubmatch(pr.Body, -1) {
		var n int
		fmt.Sscanf(match[1], "%d", &n)
		refs = append(refs, IssueRef{Repo: repo, Number: n})
	}
	return refs, nil
}

func (m *MockProvider) PostIssueComment(ctx context.Context, repo Repo, issue int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("PostIssueComment", repo, issue, body); err != nil {
		return err
	}
	m.Comments[issue] = append(m.Comments[issue], body)
	return nil
}

func (m *MockProvider) GetIssue(ctx context.Context, repo Repo, number int) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetIssue", repo, number); err != nil {
		return nil, err
	}
	if is, ok := m.Issues[number]; ok {
		out := *is
		return &out, nil
	}
	return nil, fmt.Errorf("issue #%d: %w", number, ErrNotFound)
}

var _ Provider = (*MockProvider)(nil)
