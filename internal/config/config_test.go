package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
)

func TestPathsFor(t *testing.T) {
	paths := PathsFor("/cfg", "/state")

	if paths.ConfigDir != "/cfg/forage-pr" {
		t.Errorf("ConfigDir = %q, want %q", paths.ConfigDir, "/cfg/forage-pr")
	}
	if paths.StateDir != "/state/forage-pr" {
		t.Errorf("StateDir = %q, want %q", paths.StateDir, "/state/forage-pr")
	}
	if paths.WorkspacesDir != "/state/forage-pr/workspaces" {
		t.Errorf("WorkspacesDir = %q", paths.WorkspacesDir)
	}
	if paths.AuditDir != "/state/forage-pr/runs" {
		t.Errorf("AuditDir = %q", paths.AuditDir)
	}
	if paths.ConfigFile() != "/cfg/forage-pr/config.toml" {
		t.Errorf("ConfigFile() = %q", paths.ConfigFile())
	}
}

func TestDefaultPaths_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	paths := DefaultPaths()
	if paths.ConfigDir != "/xdg/config/forage-pr" {
		t.Errorf("ConfigDir = %q", paths.ConfigDir)
	}
	if paths.StateDir != "/xdg/state/forage-pr" {
		t.Errorf("StateDir = %q", paths.StateDir)
	}
}

func TestWorkspaceRoot(t *testing.T) {
	paths := PathsFor("/cfg", "/state")
	cfg := Default()

	if got := paths.WorkspaceRoot(cfg); got != paths.WorkspacesDir {
		t.Errorf("WorkspaceRoot() = %q, want %q", got, paths.WorkspacesDir)
	}

	cfg.Workspace.Root = "/scratch"
	if got := paths.WorkspaceRoot(cfg); got != "/scratch" {
		t.Errorf("WorkspaceRoot() = %q, want /scratch", got)
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if !cfg.PullRequest.Draft {
		t.Error("pull requests should be drafts by default")
	}
	if cfg.Sync.AllowForceWithLease {
		t.Error("force-with-lease should be off by default")
	}
	if cfg.Fork.AllowAlternateName {
		t.Error("alternate fork names should be off by default")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	content := `
[fork]
mode = "always"
naming = "owner-repo"

[sync]
allow_force_with_lease = true

[pull_request]
assignee = "octocat"
draft = false

[retry]
fork_attempts = 3
compare_step = "500ms"

[agent]
command = "claude -p 'fix it'"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Fork.Mode != ForkAlways {
		t.Errorf("Fork.Mode = %q, want %q", cfg.Fork.Mode, ForkAlways)
	}
	if cfg.Fork.Naming != naming.ForkNamingOwnerRepo {
		t.Errorf("Fork.Naming = %q", cfg.Fork.Naming)
	}
	if !cfg.Sync.AllowForceWithLease {
		t.Error("Sync.AllowForceWithLease should be true")
	}
	if cfg.PullRequest.Assignee != "octocat" || cfg.PullRequest.Draft {
		t.Errorf("PullRequest = %+v", cfg.PullRequest)
	}
	if cfg.Retry.ForkAttempts != 3 {
		t.Errorf("Retry.ForkAttempts = %d, want 3", cfg.Retry.ForkAttempts)
	}
	if cfg.Retry.CompareStep != 500*time.Millisecond {
		t.Errorf("Retry.CompareStep = %v, want 500ms", cfg.Retry.CompareStep)
	}
	// Unset keys keep their defaults.
	if cfg.Retry.CompareAttempts != 5 {
		t.Errorf("Retry.CompareAttempts = %d, want default 5", cfg.Retry.CompareAttempts)
	}
	if cfg.PullRequest.MarkerFile != ".forage/task.md" {
		t.Errorf("PullRequest.MarkerFile = %q, want default", cfg.PullRequest.MarkerFile)
	}
	if cfg.Agent.Command != "claude -p 'fix it'" {
		t.Errorf("Agent.Command = %q", cfg.Agent.Command)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Fork.Mode != ForkAuto {
		t.Errorf("Fork.Mode = %q, want default %q", cfg.Fork.Mode, ForkAuto)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "[fork]\nmoed = \"auto\"\n", "unknown config keys"},
		{"bad toml", "[fork\n", "failed to parse"},
		{"bad mode", "[fork]\nmode = \"sometimes\"\n", "invalid fork mode"},
		{"bad naming", "[fork]\nnaming = \"random\"\n", "invalid fork naming"},
		{"zero attempts", "[retry]\nfork_attempts = 0\n", "at least 1"},
		{"relative root", "[workspace]\nroot = \"scratch\"\n", "absolute"},
		{"escaping marker", "[pull_request]\nmarker_file = \"../x.md\"\n", "relative to the repository"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RequiredProviderFields(t *testing.T) {
	cfg := Default()
	cfg.Provider.GH = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without provider.gh")
	}

	cfg = Default()
	cfg.Provider.Host = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without provider.host")
	}
}
