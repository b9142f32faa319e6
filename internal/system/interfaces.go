// Package system provides abstractions for OS operations to enable testing.
package system

import (
	"context"
	"fmt"
	"strings"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Execute runs a command and returns its stdout. On failure the error
	// is a *CommandError carrying stderr.
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)

	// ExecuteWithStdin runs a command with the given stdin and returns stdout.
	ExecuteWithStdin(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

	// ExecuteInteractive runs a command in dir with stdin/stdout/stderr
	// connected to the terminal. env is appended to the process environment.
	ExecuteInteractive(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// CommandError is returned when a command exits unsuccessfully. Stderr is the
// raw diagnostic text; adapters classify it, callers should not.
type CommandError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %s", e.Name, strings.Join(e.Args, " "), e.Err, msg)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Stderr returns the stderr captured in err's chain, or "".
func Stderr(err error) string {
	for err != nil {
		if ce, ok := err.(*CommandError); ok {
			return ce.Stderr
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Default instances using real OS operations.
var defaultExecutor CommandExecutor = &osExecutor{}

// DefaultExecutor returns the default CommandExecutor implementation.
func DefaultExecutor() CommandExecutor {
	return defaultExecutor
}

// SetDefaultExecutor sets the default CommandExecutor (useful for testing).
func SetDefaultExecutor(exec CommandExecutor) {
	defaultExecutor = exec
}

// ResetDefaults restores the default OS implementations.
func ResetDefaults() {
	defaultExecutor = &osExecutor{}
}
