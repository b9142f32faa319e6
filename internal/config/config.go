package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/naming"
)

const (
	AppName        = "forage-pr"
	ConfigFileName = "config.toml"
)

// ForkMode decides whether a run works through a fork.
type ForkMode string

const (
	// ForkAuto forks only when the current user cannot push to the target.
	ForkAuto ForkMode = "auto"
	// ForkAlways forks even when the user could push directly.
	ForkAlways ForkMode = "always"
	// ForkNever pushes to the target repository directly.
	ForkNever ForkMode = "never"
)

// Config is the single configuration value handed to every component.
type Config struct {
	Fork        ForkConfig        `toml:"fork"`
	Sync        SyncConfig        `toml:"sync"`
	PullRequest PullRequestConfig `toml:"pull_request"`
	Retry       RetryConfig       `toml:"retry"`
	Workspace   WorkspaceConfig   `toml:"workspace"`
	Provider    ProviderConfig    `toml:"provider"`
	Agent       AgentConfig       `toml:"agent"`
}

// ForkConfig controls fork provisioning.
type ForkConfig struct {
	Mode   ForkMode          `toml:"mode"`
	Naming naming.ForkNaming `toml:"naming"`

	// AllowAlternateName lets an existing fork under the other naming policy
	// be reused. Off by default: workers with mixed policies produce forks the
	// compare endpoint cannot match.
	AllowAlternateName bool `toml:"allow_alternate_name"`
}

// SyncConfig controls upstream synchronization of forks.
type SyncConfig struct {
	// AllowForceWithLease permits overwriting a diverged fork default branch.
	AllowForceWithLease bool `toml:"allow_force_with_lease"`
}

// PullRequestConfig controls publication.
type PullRequestConfig struct {
	Assignee        string `toml:"assignee"`
	Draft           bool   `toml:"draft"`
	MarkerFile      string `toml:"marker_file"`
	PlaceholderFile string `toml:"placeholder_file"`
	CommentOnIssue  bool   `toml:"comment_on_issue"`

	// TitleTemplate may use {number} and {title}.
	TitleTemplate string `toml:"title_template"`
}

// RetryConfig tunes the retry loops.
type RetryConfig struct {
	ForkAttempts    int           `toml:"fork_attempts"`
	ForkBaseDelay   time.Duration `toml:"fork_base_delay"`
	CompareAttempts int           `toml:"compare_attempts"`
	CompareStep     time.Duration `toml:"compare_step"`
}

// WorkspaceConfig controls ephemeral workspaces.
type WorkspaceConfig struct {
	// Root is where workspaces are created. Empty means Paths.WorkspacesDir.
	Root string `toml:"root"`
	// Keep retains the workspace after a successful run.
	Keep bool `toml:"keep"`
}

// ProviderConfig names the external tools.
type ProviderConfig struct {
	GH   string `toml:"gh"`
	Git  string `toml:"git"`
	Host string `toml:"host"`
}

// AgentConfig configures the external coding agent.
type AgentConfig struct {
	// Command is split with shell quoting rules and run in the workspace.
	// Empty skips the agent step.
	Command string `toml:"command"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Fork: ForkConfig{
			Mode:   ForkAuto,
			Naming: naming.ForkNamingRepo,
		},
		PullRequest: PullRequestConfig{
			Draft:           true,
			MarkerFile:      ".forage/task.md",
			PlaceholderFile: "FORAGE_TASK.md",
			TitleTemplate:   "Fix #{number}: {title}",
		},
		Retry: RetryConfig{
			ForkAttempts:    5,
			ForkBaseDelay:   2 * time.Second,
			CompareAttempts: 5,
			CompareStep:     2 * time.Second,
		},
		Provider: ProviderConfig{
			GH:   "gh",
			Git:  "git",
			Host: "github.com",
		},
	}
}

// Validate checks that the Config is valid.
func (c *Config) Validate() error {
	switch c.Fork.Mode {
	case ForkAuto, ForkAlways, ForkNever:
	default:
		return fmt.Errorf("invalid fork mode: %s (must be auto, always, or never)", c.Fork.Mode)
	}
	if err := c.Fork.Naming.Validate(); err != nil {
		return err
	}

	if c.PullRequest.MarkerFile == "" {
		return fmt.Errorf("pull_request.marker_file is required")
	}
	if c.PullRequest.PlaceholderFile == "" {
		return fmt.Errorf("pull_request.placeholder_file is required")
	}
	for _, p := range []string{c.PullRequest.MarkerFile, c.PullRequest.PlaceholderFile} {
		if filepath.IsAbs(p) || strings.HasPrefix(filepath.Clean(p), "..") {
			return fmt.Errorf("marker path %q must be relative to the repository", p)
		}
	}

	if c.Retry.ForkAttempts < 1 || c.Retry.CompareAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	if c.Retry.ForkBaseDelay < 0 || c.Retry.CompareStep < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}

	if c.Provider.GH == "" || c.Provider.Git == "" {
		return fmt.Errorf("provider.gh and provider.git are required")
	}
	if c.Provider.Host == "" {
		return fmt.Errorf("provider.host is required")
	}

	if c.Workspace.Root != "" && !filepath.IsAbs(c.Workspace.Root) {
		return fmt.Errorf("workspace.root must be an absolute path (got %q)", c.Workspace.Root)
	}
	return nil
}

// Load reads a TOML config file over the defaults. A missing file yields the
// defaults; unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := undecoded(meta); err != nil {
		return nil, fmt.Errorf("%w in %s", err, path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a TOML document over the defaults.
func Parse(data string) (*Config, error) {
	cfg := Default()

	meta, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := undecoded(meta); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func undecoded(meta toml.MetaData) error {
	keys := meta.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return fmt.Errorf("unknown config keys: %s", strings.Join(names, ", "))
}

// Paths holds the configured paths
type Paths struct {
	ConfigDir     string
	StateDir      string
	WorkspacesDir string
	AuditDir      string
}

// DefaultPaths returns the default path configuration, following the XDG
// base directory layout.
func DefaultPaths() *Paths {
	return PathsFor(xdgDir("XDG_CONFIG_HOME", ".config"), xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state")))
}

// PathsFor returns paths rooted at the given config and state base dirs.
func PathsFor(configBase, stateBase string) *Paths {
	stateDir := filepath.Join(stateBase, AppName)
	return &Paths{
		ConfigDir:     filepath.Join(configBase, AppName),
		StateDir:      stateDir,
		WorkspacesDir: filepath.Join(stateDir, "workspaces"),
		AuditDir:      filepath.Join(stateDir, "runs"),
	}
}

// ConfigFile returns the default config file path.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, ConfigFileName)
}

// WorkspaceRoot returns the workspace root for cfg.
func (p *Paths) WorkspaceRoot(cfg *Config) string {
	if cfg.Workspace.Root != "" {
		return cfg.Workspace.Root
	}
	return p.WorkspacesDir
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, fallback)
}
