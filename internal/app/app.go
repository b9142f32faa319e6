// Package app provides the application context for forage-pr.
// It allows dependency injection for testing.
package app

import (
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/agent"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/fork"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/pipeline"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/retry"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/vcs"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/workspace"
)

// App holds the application dependencies
type App struct {
	// Paths holds the configured paths
	Paths *config.Paths

	// Config is loaded by LoadConfig unless injected.
	Config *config.Config

	// Executor runs gh, git and the agent.
	Executor system.CommandExecutor

	// Provider and VCS default to the gh and git adapters built from
	// Config.Provider.
	Provider forge.Provider
	VCS      vcs.VCS

	Runner *retry.Runner
}

// Option is a function that configures the App
type Option func(*App)

// WithPaths sets custom paths
func WithPaths(paths *config.Paths) Option {
	return func(a *App) {
		a.Paths = paths
	}
}

// WithConfig injects a configuration, bypassing the config file.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.Config = cfg
	}
}

// WithExecutor sets the command executor
func WithExecutor(exec system.CommandExecutor) Option {
	return func(a *App) {
		a.Executor = exec
	}
}

// WithProvider sets the forge provider
func WithProvider(p forge.Provider) Option {
	return func(a *App) {
		a.Provider = p
	}
}

// WithVCS sets the version control adapter
func WithVCS(v vcs.VCS) Option {
	return func(a *App) {
		a.VCS = v
	}
}

// WithRunner sets the retry runner
func WithRunner(r *retry.Runner) Option {
	return func(a *App) {
		a.Runner = r
	}
}

// New creates a new App with the given options.
func New(opts ...Option) *App {
	app := &App{
		Paths:    config.DefaultPaths(),
		Executor: system.DefaultExecutor(),
		Runner:   retry.NewRunner(),
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// LoadConfig loads the config at path, or the default config file when path
// is empty. An injected config is returned as is.
func (a *App) LoadConfig(path string) (*config.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	if path == "" {
		path = a.Paths.ConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.ConfigError("failed to load configuration", err).
			WithHint("check %s", path)
	}
	a.Config = cfg
	return cfg, nil
}

func (a *App) config() *config.Config {
	if a.Config == nil {
		a.Config = config.Default()
	}
	return a.Config
}

// Forge returns the provider, building the gh adapter on first use.
func (a *App) Forge() forge.Provider {
	if a.Provider == nil {
		cfg := a.config()
		a.Provider = forge.NewGitHub(a.Executor, cfg.Provider.GH, cfg.Provider.Host)
	}
	return a.Provider
}

// Git returns the VCS, building the git adapter on first use.
func (a *App) Git() vcs.VCS {
	if a.VCS == nil {
		a.VCS = vcs.NewGit(a.Executor, a.config().Provider.Git)
	}
	return a.VCS
}

// Audit returns the run audit log.
func (a *App) Audit() *audit.Logger {
	return audit.NewLogger(a.Paths.AuditDir)
}

// Workspaces returns the workspace manager for the configured root.
func (a *App) Workspaces() *workspace.Manager {
	cfg := a.config()
	return workspace.NewManager(a.Paths.WorkspaceRoot(cfg), cfg.Workspace.Keep)
}

// ConflictDetector returns a fork conflict detector.
func (a *App) ConflictDetector() *fork.ConflictDetector {
	p := a.Forge()
	return fork.NewConflictDetector(p, fork.NewRootResolver(p))
}

// Provisioner returns a fork provisioner.
func (a *App) Provisioner() *fork.Provisioner {
	return fork.NewProvisioner(a.Forge(), a.Runner, a.config())
}

// Pipeline builds the full pipeline with the configured agent and audit log.
func (a *App) Pipeline(opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	cfg := a.config()
	ag, err := agent.New(a.Executor, cfg.Agent.Command)
	if err != nil {
		return nil, err
	}

	base := []pipeline.Option{pipeline.WithAudit(a.Audit())}
	if ag != nil {
		base = append(base, pipeline.WithAgent(ag))
	}
	return pipeline.New(a.Forge(), a.Git(), a.Runner, cfg, a.Paths.WorkspaceRoot(cfg), append(base, opts...)...), nil
}

// Default is the default application instance
var Default = New()

// SetDefault sets the default application instance (used for testing)
func SetDefault(app *App) {
	Default = app
}

// ResetDefault resets to the default application instance
func ResetDefault() {
	Default = New()
}
