// Package audit records what each pipeline run did. Events are stored as
// JSON Lines, one file per run, named by the run's sortable ID.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ksid"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/stage"
)

const eventsSuffix = ".events.jsonl"

// EventType classifies an audit event.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventStageStart   EventType = "stage_start"
	EventStageSuccess EventType = "stage_success"
	EventStageFailure EventType = "stage_failure"
	EventStageSkipped EventType = "stage_skipped"
	EventWarning      EventType = "warning"
	EventRunEnd       EventType = "run_end"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      EventType     `json:"type"`
	Run       string        `json:"run"`
	Stage     string        `json:"stage,omitempty"`
	Details   string        `json:"details,omitempty"`
	Kind      errors.Kind   `json:"kind,omitempty"`
	ExitCode  int           `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewRunID returns a new time-sortable run identifier.
func NewRunID() string {
	return ksid.NewID().String()
}

// ValidateRunID checks that id was produced by NewRunID.
func ValidateRunID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("invalid run ID %q", id)
	}
	if _, err := ksid.Parse(id); err != nil {
		return fmt.Errorf("invalid run ID %q: %w", id, err)
	}
	return nil
}

// Logger writes and reads audit events for runs.
// Events are stored in {dir}/{run}.events.jsonl.
type Logger struct {
	dir string
	mu  sync.Mutex
}

// NewLogger creates a new audit logger rooted at dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// Dir returns the directory holding the run logs.
func (l *Logger) Dir() string {
	return l.dir
}

func (l *Logger) eventPath(run string) string {
	return filepath.Join(l.dir, run+eventsSuffix)
}

// Log appends an event to the run's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Run == "" {
		return fmt.Errorf("audit event has no run ID")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(l.eventPath(event.Run), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// Observer returns a stage.Observer that records events for run.
// Write failures are logged and otherwise ignored.
func (l *Logger) Observer(run string) stage.Observer {
	return func(e stage.Event) {
		ev := Event{Run: run, Stage: e.Stage, Duration: e.Duration}
		switch e.Status {
		case stage.StatusStarted:
			ev.Type = EventStageStart
		case stage.StatusSucceeded:
			ev.Type = EventStageSuccess
		case stage.StatusSkipped:
			ev.Type = EventStageSkipped
		case stage.StatusFailed:
			ev.Type = EventStageFailure
			ev.Kind = errors.KindOf(e.Err)
			ev.ExitCode = errors.GetExitCode(e.Err)
			if e.Err != nil {
				ev.Details = e.Err.Error()
			}
		}
		if err := l.Log(ev); err != nil {
			logging.Warn("audit write failed", "run", run, "error", err)
		}
	}
}

// Events reads all events for a run in chronological order.
func (l *Logger) Events(run string) ([]Event, error) {
	f, err := os.Open(l.eventPath(run))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Runs lists recorded run IDs, oldest first.
func (l *Logger) Runs() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), eventsSuffix) {
			continue
		}
		runs = append(runs, strings.TrimSuffix(e.Name(), eventsSuffix))
	}
	sort.Strings(runs)
	return runs, nil
}

// Remove deletes the audit log for a run.
func (l *Logger) Remove(run string) error {
	if err := os.Remove(l.eventPath(run)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
