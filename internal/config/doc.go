// Package config provides configuration types and loading for forage-pr.
//
// # Configuration File
//
// Configuration is a single TOML file, by default
// $XDG_CONFIG_HOME/forage-pr/config.toml. A missing file yields Default();
// unknown keys are rejected so typos do not silently fall back to defaults.
//
//	[fork]
//	mode = "auto"            # auto, always, never
//	naming = "repo"          # repo, owner-repo
//	allow_alternate_name = false
//
//	[sync]
//	allow_force_with_lease = false
//
//	[pull_request]
//	assignee = "octocat"
//	draft = true
//	marker_file = ".forage/task.md"
//	placeholder_file = "FORAGE_TASK.md"
//	comment_on_issue = false
//	title_template = "Fix #{number}: {title}"
//
//	[retry]
//	fork_attempts = 5
//	fork_base_delay = "2s"
//	compare_attempts = 5
//	compare_step = "2s"
//
//	[workspace]
//	root = ""                # defaults to Paths.WorkspacesDir
//	keep = false
//
//	[provider]
//	gh = "gh"
//	git = "git"
//	host = "github.com"
//
//	[agent]
//	command = ""             # empty skips the agent step
//
// # Paths
//
// Paths follows the XDG base directory layout: configuration under
// $XDG_CONFIG_HOME/forage-pr, workspaces and per-run audit logs under
// $XDG_STATE_HOME/forage-pr.
//
// # Validation
//
// Load validates after parsing; Validate can be called on a Config built in
// code.
package config
