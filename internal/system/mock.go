package system

import (
	"context"
	"strings"
	"sync"
)

// MockExecutor implements CommandExecutor for testing.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records all executed commands for verification.
	Commands []MockCommand

	// Responses maps command-line prefixes to queued responses.
	// Key format: "command arg1 arg2...". The longest matching prefix wins.
	// When a queue has one entry left it is reused for every later call.
	Responses map[string][]MockResponse

	// DefaultResponse is used when no matching response is found.
	DefaultResponse MockResponse

	// InteractiveErr is returned by ExecuteInteractive if set.
	InteractiveErr error
}

// MockCommand records an executed command.
type MockCommand struct {
	Name  string
	Args  []string
	Stdin string
	Dir   string
	Env   []string
}

// Line returns the command joined with spaces.
func (c MockCommand) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// MockResponse defines the response for a command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Commands:  make([]MockCommand, 0),
		Responses: make(map[string][]MockResponse),
	}
}

// AddResponse queues a response for a command-line prefix.
func (m *MockExecutor) AddResponse(pattern string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = append(m.Responses[pattern], MockResponse{Output: output, Err: err})
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return m.respond(MockCommand{Name: name, Args: args})
}

func (m *MockExecutor) ExecuteWithStdin(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	return m.respond(MockCommand{Name: name, Args: args, Stdin: stdin})
}

func (m *MockExecutor) ExecuteInteractive(ctx context.Context, dir string, env []string, name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args, Dir: dir, Env: env})
	return m.InteractiveErr
}

func (m *MockExecutor) respond(c MockCommand) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, c)

	line := c.Line()
	best := ""
	found := false
	for pattern := range m.Responses {
		if (line == pattern || strings.HasPrefix(line, pattern+" ")) && len(pattern) >= len(best) {
			best, found = pattern, true
		}
	}
	if !found {
		return m.DefaultResponse.Output, m.DefaultResponse.Err
	}

	queue := m.Responses[best]
	resp := queue[0]
	if len(queue) > 1 {
		m.Responses[best] = queue[1:]
	}
	return resp.Output, resp.Err
}

// LastCommand returns the most recently executed command.
func (m *MockExecutor) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandsMatching returns the recorded commands whose line starts with prefix.
func (m *MockExecutor) CommandsMatching(prefix string) []MockCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCommand
	for _, c := range m.Commands {
		if strings.HasPrefix(c.Line(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded commands.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = make([]MockCommand, 0)
}
