package system

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMockExecutor_Execute(t *testing.T) {
	exec := NewMockExecutor()
	exec.AddResponse("echo", []byte("hello\n"), nil)

	output, err := exec.Execute(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if string(output) != "hello\n" {
		t.Errorf("Output = %q, want %q", string(output), "hello\n")
	}

	cmd, ok := exec.LastCommand()
	if !ok {
		t.Fatal("No command recorded")
	}
	if cmd.Name != "echo" {
		t.Errorf("Command name = %q, want %q", cmd.Name, "echo")
	}
}

func TestMockExecutor_LongestPrefixWins(t *testing.T) {
	exec := NewMockExecutor()
	exec.AddResponse("gh api", []byte("generic"), nil)
	exec.AddResponse("gh api user", []byte("octocat"), nil)

	out, _ := exec.Execute(context.Background(), "gh", "api", "user", "--jq", ".login")
	if string(out) != "octocat" {
		t.Errorf("Output = %q, want %q", out, "octocat")
	}

	out, _ = exec.Execute(context.Background(), "gh", "api", "repos/a/b")
	if string(out) != "generic" {
		t.Errorf("Output = %q, want %q", out, "generic")
	}

	// "gh api user" must not match "gh api users/x".
	out, _ = exec.Execute(context.Background(), "gh", "api", "users/x")
	if string(out) != "generic" {
		t.Errorf("Output = %q, want %q", out, "generic")
	}
}

func TestMockExecutor_QueuedResponses(t *testing.T) {
	exec := NewMockExecutor()
	boom := errors.New("boom")
	exec.AddResponse("git push", nil, boom)
	exec.AddResponse("git push", []byte("ok"), nil)

	if _, err := exec.Execute(context.Background(), "git", "push"); !errors.Is(err, boom) {
		t.Fatalf("first call err = %v, want boom", err)
	}
	for i := 0; i < 2; i++ {
		out, err := exec.Execute(context.Background(), "git", "push")
		if err != nil || string(out) != "ok" {
			t.Errorf("call %d = (%q, %v), want (ok, nil)", i+2, out, err)
		}
	}
}

func TestMockExecutor_DefaultResponse(t *testing.T) {
	exec := NewMockExecutor()
	exec.DefaultResponse = MockResponse{Output: []byte("default"), Err: nil}

	output, err := exec.Execute(context.Background(), "unknown", "command")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	if string(output) != "default" {
		t.Errorf("Output = %q, want %q", string(output), "default")
	}
}

func TestMockExecutor_Interactive(t *testing.T) {
	exec := NewMockExecutor()
	exec.InteractiveErr = errors.New("exit 1")

	err := exec.ExecuteInteractive(context.Background(), "/ws", []string{"A=1"}, "agent", "--go")
	if err == nil {
		t.Fatal("expected InteractiveErr")
	}
	cmd, _ := exec.LastCommand()
	if cmd.Dir != "/ws" || len(cmd.Env) != 1 || cmd.Line() != "agent --go" {
		t.Errorf("recorded %+v", cmd)
	}
}

func TestMockExecutor_Reset(t *testing.T) {
	exec := NewMockExecutor()
	exec.Execute(context.Background(), "cmd1")
	exec.Execute(context.Background(), "cmd2")

	if len(exec.Commands) != 2 {
		t.Errorf("Commands length = %d, want 2", len(exec.Commands))
	}
	if got := exec.CommandsMatching("cmd1"); len(got) != 1 {
		t.Errorf("CommandsMatching(cmd1) = %d, want 1", len(got))
	}

	exec.Reset()

	if len(exec.Commands) != 0 {
		t.Errorf("Commands length after reset = %d, want 0", len(exec.Commands))
	}
}

func TestStderr(t *testing.T) {
	ce := &CommandError{Name: "gh", Args: []string{"api"}, Stderr: "HTTP 404", Err: errors.New("exit status 1")}
	wrapped := fmt.Errorf("lookup: %w", ce)

	if got := Stderr(wrapped); got != "HTTP 404" {
		t.Errorf("Stderr() = %q, want %q", got, "HTTP 404")
	}
	if got := Stderr(errors.New("plain")); got != "" {
		t.Errorf("Stderr(plain) = %q, want empty", got)
	}
}
