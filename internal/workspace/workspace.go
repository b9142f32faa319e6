package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gofrs/flock"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

// validName matches safe workspace names: alphanumeric, hyphens, underscores, dots.
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateName checks that a workspace name is safe for use as a directory
// name and in shell commands.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("workspace name must not be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("workspace name too long (max 128 characters)")
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("workspace name %q contains invalid characters (allowed: alphanumeric, hyphens, underscores, dots)", name)
	}
	return nil
}

// Name returns the workspace directory name for a run.
func Name(issue forge.IssueRef, runID string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s-%d-%s", issue.Repo.Owner, issue.Repo.Name, issue.Number, runID))
}

// Handle is a workspace exclusively owned by one run.
type Handle struct {
	Name  string
	Path  string
	RunID string

	// Origin is the repository cloned into the workspace, set by Cloner.
	Origin forge.Repo

	lock *flock.Flock
}

// Entry describes a workspace directory found on disk.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time

	// Live is set while the run that created the workspace still holds it.
	Live bool
}

// Manager allocates and reaps workspaces under a root directory.
type Manager struct {
	root string
	keep bool
}

// NewManager creates a Manager. keep retains workspaces after success.
func NewManager(root string, keep bool) *Manager {
	return &Manager{root: root, keep: keep}
}

// Root returns the workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Create claims a new workspace directory for the run.
func (m *Manager) Create(issue forge.IssueRef, runID string) (*Handle, error) {
	name := Name(issue, runID)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	path, err := m.path(name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	// The lock is taken before the directory exists so gc never sees an
	// unheld workspace of a starting run.
	lock := flock.New(m.lockPath(name))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		if err == nil {
			err = fmt.Errorf("held by another process")
		}
		return nil, fmt.Errorf("failed to lock workspace %s: %w", name, err)
	}
	if err := os.Mkdir(path, 0755); err != nil {
		os.Remove(lock.Path())
		lock.Unlock()
		return nil, fmt.Errorf("failed to claim workspace %s: %w", name, err)
	}

	logging.Debug("workspace created", "path", path, "lock", lock.Path())
	return &Handle{Name: name, Path: path, RunID: runID, lock: lock}, nil
}

// unlock drops the run's hold on the workspace.
func (m *Manager) unlock(h *Handle) {
	if h.lock == nil {
		return
	}
	os.Remove(h.lock.Path())
	if err := h.lock.Unlock(); err != nil {
		logging.Warn("failed to unlock workspace", "path", h.Path, "error", err)
	}
	h.lock = nil
}

// Release removes the workspace after a successful run unless retention
// was requested. Failed runs always keep it. It reports whether the
// directory was removed.
func (m *Manager) Release(h *Handle, success bool) (bool, error) {
	defer m.unlock(h)
	if !success || m.keep {
		logging.Debug("workspace kept", "path", h.Path, "success", success)
		return false, nil
	}
	if err := os.RemoveAll(h.Path); err != nil {
		return false, fmt.Errorf("failed to remove workspace %s: %w", h.Path, err)
	}
	logging.Debug("workspace removed", "path", h.Path)
	return true, nil
}

// List returns the workspaces under the root, oldest first.
func (m *Manager) List() ([]Entry, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workspace root: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    e.Name(),
			Path:    filepath.Join(m.root, e.Name()),
			ModTime: info.ModTime(),
			Live:    m.InUse(e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// InUse reports whether a running process holds the named workspace.
func (m *Manager) InUse(name string) bool {
	lock := flock.New(m.lockPath(name))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		return true
	}
	os.Remove(lock.Path())
	lock.Unlock()
	return false
}

// Remove deletes the named workspace. A workspace still held by its run is
// left alone and Remove reports false.
func (m *Manager) Remove(name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	path, err := m.path(name)
	if err != nil {
		return false, err
	}

	lock := flock.New(m.lockPath(name))
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock workspace %s: %w", name, err)
	}
	if !locked {
		return false, nil
	}
	defer func() {
		os.Remove(lock.Path())
		lock.Unlock()
	}()

	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to remove workspace %s: %w", name, err)
	}
	return true, nil
}

// lockPath is the lock file beside the workspace directory. It is hidden
// from List by its leading dot.
func (m *Manager) lockPath(name string) string {
	return filepath.Join(m.root, "."+name+".lock")
}

func (m *Manager) path(name string) (string, error) {
	path, err := securejoin.SecureJoin(m.root, name)
	if err != nil {
		return "", fmt.Errorf("invalid workspace path %q: %w", name, err)
	}
	return path, nil
}
