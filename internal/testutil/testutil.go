// Package testutil provides test utilities for pipeline and command tests
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/retry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/workspace"
)

// User is the authenticated account in a TestEnv.
const User = "me"

// TestEnv holds the test environment
type TestEnv struct {
	T        *testing.T
	TmpDir   string
	Paths    *config.Paths
	Config   *config.Config
	Provider *forge.MockProvider
	VCS      *vcs.MockVCS
	Executor *system.MockExecutor
	Timer    *retry.ImmediateTimer
	App      *app.App
	cleanup  func()
}

// NewTestEnv creates a test environment backed by an in-memory forge and
// git, and installs its App as app.Default until Cleanup.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()
	paths := config.PathsFor(filepath.Join(tmpDir, "config"), filepath.Join(tmpDir, "state"))

	for _, dir := range []string{paths.ConfigDir, paths.StateDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	cfg := config.Default()
	provider := forge.NewMockProvider(User)
	mockVCS := vcs.NewMockVCS()
	urlFor := workspace.HTTPSURL(cfg.Provider.Host)
	provider.RemoteBranches = func(repo forge.Repo, branch string) string {
		return mockVCS.RemoteBranch(urlFor(repo), branch)
	}
	exec := system.NewMockExecutor()
	timer := retry.NewImmediateTimer()

	testApp := app.New(
		app.WithPaths(paths),
		app.WithConfig(cfg),
		app.WithProvider(provider),
		app.WithVCS(mockVCS),
		app.WithExecutor(exec),
		app.WithRunner(retry.NewRunner(retry.WithTimer(timer))),
	)

	originalDefault := app.Default
	app.SetDefault(testApp)

	return &TestEnv{
		T:        t,
		TmpDir:   tmpDir,
		Paths:    paths,
		Config:   cfg,
		Provider: provider,
		VCS:      mockVCS,
		Executor: exec,
		Timer:    timer,
		App:      testApp,
		cleanup: func() {
			app.SetDefault(originalDefault)
		},
	}
}

// Cleanup restores the original app default
func (e *TestEnv) Cleanup() {
	if e.cleanup != nil {
		e.cleanup()
	}
}

// URL returns the clone URL the pipeline uses for repo.
func (e *TestEnv) URL(repo forge.Repo) string {
	return workspace.HTTPSURL(e.Config.Provider.Host)(repo)
}

// AddUpstream registers repo on the forge and as a git remote with a main
// branch.
func (e *TestEnv) AddUpstream(repo forge.Repo, canPush bool) *forge.MockRepo {
	e.T.Helper()
	e.VCS.AddRemoteRepo(e.URL(repo), "main")
	return e.Provider.AddRepo(repo, canPush)
}

// AddForkRemote makes fork cloneable with parent's history. The forge side
// of the fork is left to the code under test.
func (e *TestEnv) AddForkRemote(parent, fork forge.Repo) {
	e.T.Helper()
	e.VCS.CopyRemoteRepo(e.URL(parent), e.URL(fork))
}

// AddIssue registers an open issue on the forge.
func (e *TestEnv) AddIssue(number int, title string) {
	e.Provider.Issues[number] = &forge.Issue{Number: number, Title: title, State: "OPEN"}
}

// WorkspaceDirs lists the directories left under the workspace root.
func (e *TestEnv) WorkspaceDirs() []string {
	e.T.Helper()
	entries, err := os.ReadDir(e.Paths.WorkspaceRoot(e.Config))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		e.T.Fatalf("Failed to read workspace root: %v", err)
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out
}
