package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/testutil"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/workspace"
)

func addWorkspace(t *testing.T, env *testutil.TestEnv, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(env.Paths.WorkspaceRoot(env.Config), name)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
}

func TestGCCommand_Help(t *testing.T) {
	newEnv(t)
	stdout, _, err := executeCommand("gc", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v", err)
	}

	if !strings.Contains(stdout, "workspaces") {
		t.Error("GC help should mention workspaces")
	}

	if !strings.Contains(stdout, "--force") {
		t.Error("GC help should mention --force flag")
	}
}

func TestGCCommand_DryRun(t *testing.T) {
	env := newEnv(t)
	addWorkspace(t, env, "octo-app-7-run1", time.Hour)

	stdout, _, err := executeCommand("gc")
	if err != nil {
		t.Fatalf("gc failed: %v", err)
	}

	if !strings.Contains(stdout, "Dry run") {
		t.Errorf("expected dry run output, got %q", stdout)
	}
	if !strings.Contains(stdout, "octo-app-7-run1") {
		t.Errorf("dry run should list the workspace, got %q", stdout)
	}
	if got := env.WorkspaceDirs(); len(got) != 1 {
		t.Errorf("dry run removed workspaces: %v", got)
	}
}

func TestGCCommand_Force(t *testing.T) {
	env := newEnv(t)
	addWorkspace(t, env, "octo-app-7-run1", 2*time.Hour)
	addWorkspace(t, env, "octo-app-8-run2", time.Minute)

	if _, _, err := executeCommand("gc", "--force", "--older-than", "1h"); err != nil {
		t.Fatalf("gc failed: %v", err)
	}

	got := env.WorkspaceDirs()
	if len(got) != 1 || got[0] != "octo-app-8-run2" {
		t.Errorf("WorkspaceDirs() = %v, want [octo-app-8-run2]", got)
	}
}

func TestGCCommand_SparesLiveRun(t *testing.T) {
	env := newEnv(t)
	addWorkspace(t, env, "octo-app-7-run1", 2*time.Hour)

	mgr := env.App.Workspaces()
	live, err := mgr.Create(forge.IssueRef{Repo: upstream, Number: 8}, "run2")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer mgr.Release(live, true)

	stdout, _, err := executeCommand("gc")
	if err != nil {
		t.Fatalf("gc failed: %v", err)
	}
	if strings.Contains(stdout, live.Name) {
		t.Errorf("dry run lists the live workspace: %q", stdout)
	}

	if _, _, err := executeCommand("gc", "--force"); err != nil {
		t.Fatalf("gc failed: %v", err)
	}
	got := env.WorkspaceDirs()
	if len(got) != 1 || got[0] != live.Name {
		t.Errorf("WorkspaceDirs() = %v, want [%s]", got, live.Name)
	}
}

func TestGCCommand_Empty(t *testing.T) {
	newEnv(t)
	stdout, _, err := executeCommand("gc", "--force")
	if err != nil {
		t.Fatalf("gc failed: %v", err)
	}
	if !strings.Contains(stdout, "No stale workspaces") {
		t.Errorf("expected empty message, got %q", stdout)
	}
}

func TestStaleWorkspaces(t *testing.T) {
	now := time.Now()
	entries := []workspace.Entry{
		{Name: "old", ModTime: now.Add(-48 * time.Hour)},
		{Name: "new", ModTime: now.Add(-time.Minute)},
		{Name: "running", ModTime: now.Add(-72 * time.Hour), Live: true},
	}

	tests := []struct {
		name   string
		cutoff time.Time
		want   int
	}{
		{"everything", now, 2},
		{"older than a day", now.Add(-24 * time.Hour), 1},
		{"older than a week", now.Add(-7 * 24 * time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := staleWorkspaces(entries, tt.cutoff); len(got) != tt.want {
				t.Errorf("staleWorkspaces() = %d entries, want %d", len(got), tt.want)
			}
		})
	}
}
