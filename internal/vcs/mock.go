package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MockRemote is a remote repository held by MockVCS.
type MockRemote struct {
	DefaultBranch string
	Branches      map[string]string // name -> sha
	Protected     map[string]bool
}

// MockWorktree is a cloned workspace held by MockVCS.
type MockWorktree struct {
	Remotes    map[string]string // name -> url
	Branches   map[string]string // name -> sha
	RemoteRefs map[string]string // "remote/branch" -> sha
	Head       string
	Tracked    map[string]string // committed path -> content
	Staged     map[string]string
}

// MockVCS is an in-memory VCS for testing. Commits form a parent graph so
// pushes can be checked for fast-forward the way a real remote would.
// Staged content is read from the real workspace directory.
type MockVCS struct {
	mu sync.Mutex

	// Remotes maps clone URLs to repositories.
	Remotes map[string]*MockRemote

	// Worktrees maps workspace dirs to their state.
	Worktrees map[string]*MockWorktree

	// Ignored lists paths the ignore rules exclude.
	Ignored map[string]bool

	// CloneWithoutOrigin makes Clone skip recording the origin remote.
	CloneWithoutOrigin bool

	// StickyHead makes Checkout, CheckoutTracking and CreateBranch succeed
	// without moving HEAD, like a tool that reports success on the wrong
	// branch.
	StickyHead bool

	// Errors allows injecting errors for specific methods
	Errors map[string]error

	// CallLog records all method calls for verification
	CallLog []MockCall

	parents map[string]string // sha -> parent sha
	nextSHA int
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []any
}

// NewMockVCS creates an empty MockVCS.
func NewMockVCS() *MockVCS {
	return &MockVCS{
		Remotes:   make(map[string]*MockRemote),
		Worktrees: make(map[string]*MockWorktree),
		Ignored:   make(map[string]bool),
		Errors:    make(map[string]error),
		CallLog:   make([]MockCall, 0),
		parents:   make(map[string]string),
	}
}

func (m *MockVCS) record(method string, args ...any) error {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
	return m.Errors[method]
}

// SetError sets an error to be returned for a specific method
func (m *MockVCS) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method] = err
}

// Calls returns the recorded calls to method.
func (m *MockVCS) Calls(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.CallLog {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockVCS) commit(parent string) string {
	m.nextSHA++
	sha := fmt.Sprintf("%040x", m.nextSHA)
	m.parents[sha] = parent
	return sha
}

// isAncestor reports whether a is reachable from b.
func (m *MockVCS) isAncestor(a, b string) bool {
	for cur := b; cur != ""; cur = m.parents[cur] {
		if cur == a {
			return true
		}
	}
	return false
}

// AddRemoteRepo registers a remote at url with one commit on branch.
func (m *MockVCS) AddRemoteRepo(url, branch string) *MockRemote {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &MockRemote{
		DefaultBranch: branch,
		Branches:      map[string]string{branch: m.commit("")},
		Protected:     make(map[string]bool),
	}
	m.Remotes[url] = r
	return r
}

// CopyRemoteRepo registers a remote at url sharing src's history.
func (m *MockVCS) CopyRemoteRepo(src, url string) *MockRemote {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.Remotes[src]
	r := &MockRemote{DefaultBranch: s.DefaultBranch, Branches: make(map[string]string), Protected: make(map[string]bool)}
	for k, v := range s.Branches {
		r.Branches[k] = v
	}
	m.Remotes[url] = r
	return r
}

// AdvanceRemote adds a commit on top of branch at url.
func (m *MockVCS) AdvanceRemote(url, branch string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.Remotes[url]
	sha := m.commit(r.Branches[branch])
	r.Branches[branch] = sha
	return sha
}

// RewriteRemote replaces branch at url with an unrelated history.
func (m *MockVCS) RewriteRemote(url, branch string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sha := m.commit("")
	m.Remotes[url].Branches[branch] = sha
	return sha
}

// RemoteBranch returns the sha of branch at url, or "".
func (m *MockVCS) RemoteBranch(url, branch string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.Remotes[url]; ok {
		return r.Branches[branch]
	}
	return ""
}

// Worktree returns the workspace state for dir, or nil.
func (m *MockVCS) Worktree(dir string) *MockWorktree {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Worktrees[dir]
}

func (m *MockVCS) worktree(dir string) (*MockWorktree, error) {
	wt, ok := m.Worktrees[dir]
	if !ok {
		return nil, fmt.Errorf("%s: not a git repository", dir)
	}
	return wt, nil
}

func (m *MockVCS) remoteFor(wt *MockWorktree, remote string) (*MockRemote, error) {
	url, ok := wt.Remotes[remote]
	if !ok {
		return nil, fmt.Errorf("%s: %w", remote, ErrNoRemote)
	}
	r, ok := m.Remotes[url]
	if !ok {
		return nil, fmt.Errorf("repository %s not found", url)
	}
	return r, nil
}

func (m *MockVCS) resolve(wt *MockWorktree, ref string) (string, bool) {
	if ref == "HEAD" {
		ref = wt.Head
	}
	if sha, ok := wt.Branches[ref]; ok {
		return sha, true
	}
	if sha, ok := wt.RemoteRefs[ref]; ok {
		return sha, true
	}
	if _, ok := m.parents[ref]; ok {
		return ref, true
	}
	return "", false
}

func (m *MockVCS) Clone(ctx context.Context, url, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Clone", url, dir); err != nil {
		return err
	}
	r, ok := m.Remotes[url]
	if !ok {
		return fmt.Errorf("git clone %s: repository not found", url)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	wt := &MockWorktree{
		Remotes:    make(map[string]string),
		Branches:   make(map[string]string),
		RemoteRefs: make(map[string]string),
		Tracked:    make(map[string]string),
		Staged:     make(map[string]string),
		Head:       r.DefaultBranch,
	}
	if !m.CloneWithoutOrigin {
		wt.Remotes["origin"] = url
	}
	for b, sha := range r.Branches {
		wt.RemoteRefs["origin/"+b] = sha
	}
	wt.Branches[r.DefaultBranch] = r.Branches[r.DefaultBranch]
	m.Worktrees[dir] = wt
	return nil
}

func (m *MockVCS) RemoteURL(ctx context.Context, dir, remote string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoteURL", dir, remote); err != nil {
		return "", err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return "", err
	}
	url, ok := wt.Remotes[remote]
	if !ok {
		return "", fmt.Errorf("%s: %w", remote, ErrNoRemote)
	}
	return url, nil
}

func (m *MockVCS) AddRemote(ctx context.Context, dir, remote, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("AddRemote", dir, remote, url); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	if _, ok := wt.Remotes[remote]; ok {
		return fmt.Errorf("remote %s already exists", remote)
	}
	wt.Remotes[remote] = url
	return nil
}

func (m *MockVCS) Fetch(ctx context.Context, dir, remote string, refs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Fetch", dir, remote, refs); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	r, err := m.remoteFor(wt, remote)
	if err != nil {
		return err
	}
	for b, sha := range r.Branches {
		if len(refs) > 0 && !contains(refs, b) {
			continue
		}
		wt.RemoteRefs[remote+"/"+b] = sha
	}
	for _, ref := range refs {
		if _, ok := r.Branches[ref]; !ok {
			return fmt.Errorf("git fetch %s: couldn't find remote ref %s", remote, ref)
		}
	}
	return nil
}

func (m *MockVCS) RemoteDefaultBranch(ctx context.Context, dir, remote string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RemoteDefaultBranch", dir, remote); err != nil {
		return "", err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return "", err
	}
	r, err := m.remoteFor(wt, remote)
	if err != nil {
		return "", err
	}
	return r.DefaultBranch, nil
}

func (m *MockVCS) CurrentBranch(ctx context.Context, dir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CurrentBranch", dir); err != nil {
		return "", err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return "", err
	}
	return wt.Head, nil
}

func (m *MockVCS) moveHead(wt *MockWorktree, branch string) {
	if !m.StickyHead {
		wt.Head = branch
	}
}

func (m *MockVCS) Checkout(ctx context.Context, dir, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Checkout", dir, branch); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	if _, ok := wt.Branches[branch]; !ok {
		sha, ok := wt.RemoteRefs["origin/"+branch]
		if !ok {
			return fmt.Errorf("git checkout %s: pathspec did not match", branch)
		}
		wt.Branches[branch] = sha
	}
	m.moveHead(wt, branch)
	return nil
}

func (m *MockVCS) CheckoutTracking(ctx context.Context, dir, remote, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CheckoutTracking", dir, remote, branch); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	sha, ok := wt.RemoteRefs[remote+"/"+branch]
	if !ok {
		return fmt.Errorf("git checkout %s: %s/%s is not a commit", branch, remote, branch)
	}
	wt.Branches[branch] = sha
	m.moveHead(wt, branch)
	return nil
}

func (m *MockVCS) CreateBranch(ctx context.Context, dir, branch, startPoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateBranch", dir, branch, startPoint); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	if _, ok := wt.Branches[branch]; ok {
		return fmt.Errorf("git checkout -b %s: a branch named '%s' already exists", branch, branch)
	}
	sha, ok := m.resolve(wt, startPoint)
	if !ok {
		return fmt.Errorf("git checkout -b %s: invalid start point %s", branch, startPoint)
	}
	wt.Branches[branch] = sha
	m.moveHead(wt, branch)
	return nil
}

func (m *MockVCS) BranchExists(ctx context.Context, dir, branch string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("BranchExists", dir, branch); err != nil {
		return false, err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return false, err
	}
	_, ok := wt.Branches[branch]
	return ok, nil
}

func (m *MockVCS) RevParse(ctx context.Context, dir, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RevParse", dir, ref); err != nil {
		return "", err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return "", err
	}
	sha, ok := m.resolve(wt, ref)
	if !ok {
		return "", fmt.Errorf("git rev-parse %s: unknown revision", ref)
	}
	return sha, nil
}

func (m *MockVCS) ResetHard(ctx context.Context, dir, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ResetHard", dir, ref); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	sha, ok := m.resolve(wt, ref)
	if !ok {
		return fmt.Errorf("git reset --hard %s: unknown revision", ref)
	}
	wt.Branches[wt.Head] = sha
	wt.Staged = make(map[string]string)
	return nil
}

func (m *MockVCS) IsIgnored(ctx context.Context, dir, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("IsIgnored", dir, path); err != nil {
		return false, err
	}
	return m.Ignored[path], nil
}

func (m *MockVCS) Add(ctx context.Context, dir string, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Add", dir, paths); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if m.Ignored[p] {
			return fmt.Errorf("git add: the following paths are ignored by one of your .gitignore files: %s", p)
		}
		data, err := os.ReadFile(filepath.Join(dir, p))
		if err != nil {
			return fmt.Errorf("git add: pathspec '%s' did not match any files", p)
		}
		if content := string(data); wt.Tracked[p] != content {
			wt.Staged[p] = content
		}
	}
	return nil
}

func (m *MockVCS) HasStagedChanges(ctx context.Context, dir string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("HasStagedChanges", dir); err != nil {
		return false, err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return false, err
	}
	return len(wt.Staged) > 0, nil
}

func (m *MockVCS) Commit(ctx context.Context, dir, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Commit", dir, message); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	if len(wt.Staged) == 0 {
		return fmt.Errorf("git commit: nothing to commit, working tree clean")
	}
	wt.Branches[wt.Head] = m.commit(wt.Branches[wt.Head])
	for p, c := range wt.Staged {
		wt.Tracked[p] = c
	}
	wt.Staged = make(map[string]string)
	return nil
}

func (m *MockVCS) Push(ctx context.Context, dir, remote, branch string, opts PushOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("Push", dir, remote, branch, opts); err != nil {
		return err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return err
	}
	r, err := m.remoteFor(wt, remote)
	if err != nil {
		return err
	}
	local, ok := wt.Branches[branch]
	if !ok {
		return fmt.Errorf("git push: src refspec %s does not match any", branch)
	}

	current, exists := r.Branches[branch]
	if exists && current != local && !m.isAncestor(current, local) {
		if !opts.ForceWithLease {
			return fmt.Errorf("git push %s %s: %w", remote, branch, ErrNonFastForward)
		}
		if opts.ExpectedSHA != "" && opts.ExpectedSHA != current {
			return fmt.Errorf("git push %s %s: %w", remote, branch, ErrStaleLease)
		}
		if r.Protected[branch] {
			return fmt.Errorf("git push %s %s: %w", remote, branch, ErrProtectedBranch)
		}
	}
	r.Branches[branch] = local
	wt.RemoteRefs[remote+"/"+branch] = local
	return nil
}

func (m *MockVCS) CommitsAhead(ctx context.Context, dir, base, head string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CommitsAhead", dir, base, head); err != nil {
		return 0, err
	}
	wt, err := m.worktree(dir)
	if err != nil {
		return 0, err
	}
	b, ok := m.resolve(wt, base)
	if !ok {
		return 0, fmt.Errorf("unknown revision %s", base)
	}
	h, ok := m.resolve(wt, head)
	if !ok {
		return 0, fmt.Errorf("unknown revision %s", head)
	}
	n := 0
	for cur := h; cur != "" && !m.isAncestor(cur, b); cur = m.parents[cur] {
		n++
	}
	return n, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ VCS = (*MockVCS)(nil)
