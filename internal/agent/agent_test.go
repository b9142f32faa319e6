package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/forge"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/system"
)

func testTask() Task {
	return Task{
		Issue:     forge.IssueRef{Repo: forge.Repo{Owner: "octo", Name: "app"}, Number: 7},
		Branch:    "issue-7-0123456789ab",
		Workspace: "/tmp/ws",
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		wantNil  bool
		wantArgv []string
		wantErr  bool
	}{
		{name: "empty", command: "", wantNil: true},
		{name: "simple", command: "claude -p fix", wantArgv: []string{"claude", "-p", "fix"}},
		{name: "quoted", command: `aider --message "fix the issue"`, wantArgv: []string{"aider", "--message", "fix the issue"}},
		{name: "unterminated quote", command: `aider "oops`, wantErr: true},
		{name: "blank", command: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(system.NewMockExecutor(), tt.command)
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() should fail")
				}
				if errors.GetExitCode(err) != errors.ExitConfigError {
					t.Errorf("exit code = %d, want %d", errors.GetExitCode(err), errors.ExitConfigError)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if tt.wantNil {
				if a != nil {
					t.Errorf("New() = %v, want nil", a)
				}
				return
			}
			got := a.(*CommandAgent).Argv()
			if fmt.Sprint(got) != fmt.Sprint(tt.wantArgv) {
				t.Errorf("Argv() = %q, want %q", got, tt.wantArgv)
			}
		})
	}
}

func TestTask_Env(t *testing.T) {
	task := testTask()
	env := task.Env()
	want := map[string]bool{
		"FORAGE_PR_BRANCH=issue-7-0123456789ab": true,
		"FORAGE_PR_ISSUE=7":                     true,
		"FORAGE_PR_REPO=octo/app":               true,
		"FORAGE_PR_WORKSPACE=/tmp/ws":           true,
	}
	if len(env) != len(want) {
		t.Fatalf("Env() = %v, want %d entries", env, len(want))
	}
	for _, e := range env {
		if !want[e] {
			t.Errorf("unexpected env entry %q", e)
		}
	}

	task.Fork = &forge.Repo{Owner: "me", Name: "app"}
	env = task.Env()
	if got := env[len(env)-1]; got != "FORAGE_PR_FORK=me/app" {
		t.Errorf("last env entry = %q, want FORAGE_PR_FORK=me/app", got)
	}
}

func TestCommandAgent_Run(t *testing.T) {
	exec := system.NewMockExecutor()
	a, err := NewCommandAgent(exec, "claude -p 'fix it'")
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Run(context.Background(), testTask()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	cmd, ok := exec.LastCommand()
	if !ok {
		t.Fatal("no command recorded")
	}
	if cmd.Line() != "claude -p fix it" {
		t.Errorf("command = %q", cmd.Line())
	}
	if cmd.Dir != "/tmp/ws" {
		t.Errorf("Dir = %q, want /tmp/ws", cmd.Dir)
	}
	if len(cmd.Env) != 4 {
		t.Errorf("Env = %v, want 4 entries", cmd.Env)
	}
	if a.Name() != "claude" {
		t.Errorf("Name() = %q, want claude", a.Name())
	}
}

func TestCommandAgent_RunFailure(t *testing.T) {
	exec := system.NewMockExecutor()
	exec.InteractiveErr = fmt.Errorf("exit status 2")
	a, _ := NewCommandAgent(exec, "/usr/bin/agent")

	err := a.Run(context.Background(), testTask())
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if errors.KindOf(err) != errors.KindAgent {
		t.Errorf("KindOf() = %q, want %q", errors.KindOf(err), errors.KindAgent)
	}
	if len(errors.GetRemediation(err)) != 2 {
		t.Errorf("remediation = %v, want hint and command", errors.GetRemediation(err))
	}
}
