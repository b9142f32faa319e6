// Package stage runs an ordered list of steps over shared state, stopping
// at the first failure. Every step start and outcome is logged the same
// way and reported to an optional Observer.
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

// Status is the outcome reported for a step.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Step is one named unit of work over state S.
type Step[S any] struct {
	Name string
	Run  func(ctx context.Context, s *S) error

	// Skip, when set and true, skips the step.
	Skip func(s *S) bool
}

// Event is reported to an Observer on every step transition.
type Event struct {
	Stage    string
	Status   Status
	Duration time.Duration
	Err      error
}

// Observer receives step events.
type Observer func(Event)

// Failure is returned by Run when a step fails.
type Failure struct {
	Stage string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// StageOf returns the failed stage in err's chain, or "".
func StageOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return ""
}

// Run executes steps in order. It returns a *Failure wrapping the first
// step error, or ctx's error if ctx is done before a step starts.
func Run[S any](ctx context.Context, s *S, steps []Step[S], observe Observer) error {
	if observe == nil {
		observe = func(Event) {}
	}

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return &Failure{Stage: st.Name, Err: err}
		}
		if st.Skip != nil && st.Skip(s) {
			logging.Debug("stage skipped", "stage", st.Name)
			observe(Event{Stage: st.Name, Status: StatusSkipped})
			continue
		}

		logging.Debug("stage started", "stage", st.Name)
		observe(Event{Stage: st.Name, Status: StatusStarted})
		start := time.Now()

		if err := st.Run(ctx, s); err != nil {
			elapsed := time.Since(start)
			logging.Error("stage failed",
				"stage", st.Name,
				"kind", errors.KindOf(err),
				"exit_code", errors.GetExitCode(err),
				"duration", elapsed,
				"error", err)
			observe(Event{Stage: st.Name, Status: StatusFailed, Duration: elapsed, Err: err})
			return &Failure{Stage: st.Name, Err: err}
		}

		elapsed := time.Since(start)
		logging.Debug("stage succeeded", "stage", st.Name, "duration", elapsed)
		observe(Event{Stage: st.Name, Status: StatusSucceeded, Duration: elapsed})
	}
	return nil
}
