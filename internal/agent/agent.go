// Package agent runs the external coding agent that does the actual work on
// a task branch. forage-pr only prepares the workspace before it and
// publishes the result after it.
package agent

import (
	"context"
	"fmt"
	"path/filepath"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
)

// Environment variables exported to the agent.
const (
	EnvBranch    = "FORAGE_PR_BRANCH"
	EnvIssue     = "FORAGE_PR_ISSUE"
	EnvRepo      = "FORAGE_PR_REPO"
	EnvFork      = "FORAGE_PR_FORK"
	EnvWorkspace = "FORAGE_PR_WORKSPACE"
)

// Task is the unit of work handed to an agent.
type Task struct {
	Issue     forge.IssueRef
	Branch    string
	Workspace string

	// Fork is nil when the branch lives on the target repository.
	Fork *forge.Repo
}

// Env returns the task as KEY=value pairs.
func (t Task) Env() []string {
	env := []string{
		EnvBranch + "=" + t.Branch,
		fmt.Sprintf("%s=%d", EnvIssue, t.Issue.Number),
		EnvRepo + "=" + t.Issue.Repo.String(),
		EnvWorkspace + "=" + t.Workspace,
	}
	if t.Fork != nil {
		env = append(env, EnvFork+"="+t.Fork.String())
	}
	return env
}

// Agent works on a task inside its workspace.
type Agent interface {
	// Name returns the agent identifier.
	Name() string

	Run(ctx context.Context, task Task) error
}

// CommandAgent runs a configured command in the workspace.
type CommandAgent struct {
	exec system.CommandExecutor
	argv []string
}

// NewCommandAgent parses command with shell quoting rules.
func NewCommandAgent(exec system.CommandExecutor, command string) (*CommandAgent, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid agent command %q", command), err)
	}
	if len(argv) == 0 {
		return nil, errors.ConfigError("agent command is empty", nil)
	}
	return &CommandAgent{exec: exec, argv: argv}, nil
}

// New returns the agent for command, or nil when command is empty.
func New(exec system.CommandExecutor, command string) (Agent, error) {
	if command == "" {
		return nil, nil
	}
	a, err := NewCommandAgent(exec, command)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *CommandAgent) Name() string {
	return filepath.Base(a.argv[0])
}

// Argv returns the parsed command line.
func (a *CommandAgent) Argv() []string {
	return append([]string(nil), a.argv...)
}

func (a *CommandAgent) Run(ctx context.Context, task Task) error {
	logging.Info("running agent", "agent", a.Name(), "branch", task.Branch, "workspace", task.Workspace)

	if err := a.exec.ExecuteInteractive(ctx, task.Workspace, task.Env(), a.argv[0], a.argv[1:]...); err != nil {
		e := errors.AgentFailed(err)
		e.WithHint("the workspace is kept at %s; rerun the agent there", task.Workspace)
		e.WithCommand(append([]string{"env"}, append(task.Env(), a.argv...)...)...)
		return e
	}
	return nil
}
