package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
)

func TestNew(t *testing.T) {
	app := New()

	if app == nil {
		t.Fatal("New() returned nil")
	}
	if app.Paths == nil {
		t.Error("Paths should not be nil")
	}
	if app.Executor == nil {
		t.Error("Executor should not be nil")
	}
	if app.Runner == nil {
		t.Error("Runner should not be nil")
	}
}

func TestNew_WithPaths(t *testing.T) {
	customPaths := config.PathsFor("/custom/config", "/custom/state")

	app := New(WithPaths(customPaths))

	if app.Paths != customPaths {
		t.Error("WithPaths did not set custom paths")
	}
}

func TestNew_MultipleOptions(t *testing.T) {
	cfg := config.Default()
	provider := forge.NewMockProvider("me")
	mockVCS := vcs.NewMockVCS()
	exec := system.NewMockExecutor()

	app := New(WithConfig(cfg), WithProvider(provider), WithVCS(mockVCS), WithExecutor(exec))

	if app.Config != cfg {
		t.Error("Config not set correctly")
	}
	if app.Forge() != provider {
		t.Error("Forge() should return the injected provider")
	}
	if app.Git() != mockVCS {
		t.Error("Git() should return the injected VCS")
	}
	if app.Executor != exec {
		t.Error("Executor not set correctly")
	}
}

func TestForge_BuildsGitHubAdapter(t *testing.T) {
	app := New(WithConfig(config.Default()), WithExecutor(system.NewMockExecutor()))

	if _, ok := app.Forge().(*forge.GitHub); !ok {
		t.Errorf("Forge() = %T, want *forge.GitHub", app.Forge())
	}
	if _, ok := app.Git().(*vcs.Git); !ok {
		t.Errorf("Git() = %T, want *vcs.Git", app.Git())
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	paths := config.PathsFor(dir, filepath.Join(dir, "state"))
	if err := os.MkdirAll(paths.ConfigDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.ConfigFile(), []byte("[pull_request]\nassignee = \"me\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	app := New(WithPaths(paths))
	cfg, err := app.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.PullRequest.Assignee != "me" {
		t.Errorf("Assignee = %q, want me", cfg.PullRequest.Assignee)
	}
	if app.Config != cfg {
		t.Error("LoadConfig should store the config")
	}
}

func TestLoadConfig_Injected(t *testing.T) {
	cfg := config.Default()
	app := New(WithConfig(cfg))

	got, err := app.LoadConfig("/does/not/matter.toml")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got != cfg {
		t.Error("LoadConfig should return the injected config")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[fork]\nmode = \"sometimes\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := New().LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() should fail")
	}
	if errors.GetExitCode(err) != errors.ExitConfigError {
		t.Errorf("exit code = %d, want %d", errors.GetExitCode(err), errors.ExitConfigError)
	}
}

func TestPipeline_InvalidAgentCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.Command = `agent "unterminated`
	app := New(WithConfig(cfg), WithProvider(forge.NewMockProvider("me")), WithVCS(vcs.NewMockVCS()))

	if _, err := app.Pipeline(); err == nil {
		t.Error("Pipeline() should reject an invalid agent command")
	}
}

func TestSetDefault(t *testing.T) {
	original := Default
	defer func() { Default = original }()

	customApp := New(WithConfig(config.Default()))
	SetDefault(customApp)

	if Default != customApp {
		t.Error("SetDefault did not update Default")
	}

	ResetDefault()
	if Default == customApp {
		t.Error("ResetDefault did not create new Default")
	}
	if Default.Paths == nil {
		t.Error("ResetDefault should create app with default paths")
	}
}
