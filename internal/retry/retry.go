// Package retry runs bounded sleep-then-repeat loops on top of
// cenkalti/backoff. Schedules are deterministic (no jitter) so the delays
// logged are the delays slept.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/logging"
)

// Growth selects how delays grow between attempts.
type Growth int

const (
	// Exponential doubles the delay after each attempt: d, 2d, 4d, ...
	Exponential Growth = iota
	// Linear grows the delay by a fixed step: d, 2d, 3d, ...
	Linear
)

// Policy describes a bounded retry schedule.
type Policy struct {
	Name     string
	Attempts int
	Delay    time.Duration
	Growth   Growth

	// DelayFirst waits Delay before the first attempt too, so Attempts
	// attempts are preceded by Attempts delays.
	DelayFirst bool
}

// ExponentialPolicy returns a doubling schedule starting at base.
func ExponentialPolicy(name string, attempts int, base time.Duration) Policy {
	return Policy{Name: name, Attempts: attempts, Delay: base, Growth: Exponential}
}

// PollPolicy returns a linear schedule that waits before every attempt.
func PollPolicy(name string, attempts int, step time.Duration) Policy {
	return Policy{Name: name, Attempts: attempts, Delay: step, Growth: Linear, DelayFirst: true}
}

// Delays returns the waits the policy performs when every attempt fails.
func (p Policy) Delays() []time.Duration {
	var out []time.Duration
	n := p.Attempts - 1
	if p.DelayFirst {
		n = p.Attempts
	}
	d := p.Delay
	for i := 0; i < n; i++ {
		out = append(out, d)
		if p.Growth == Exponential {
			d *= 2
		} else {
			d += p.Delay
		}
	}
	return out
}

// backOff builds the schedule for the waits between attempts.
func (p Policy) backOff() backoff.BackOff {
	var b backoff.BackOff
	switch p.Growth {
	case Linear:
		start := 0
		if p.DelayFirst {
			start = 1
		}
		b = &linearBackOff{step: p.Delay, start: start}
	default:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Delay
		if p.DelayFirst {
			eb.InitialInterval = 2 * p.Delay
		}
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		eb.MaxInterval = time.Hour
		eb.MaxElapsedTime = 0
		b = eb
	}
	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// linearBackOff yields step*(n+1) for n = start, start+1, ...
type linearBackOff struct {
	step  time.Duration
	start int
	n     int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linearBackOff) Reset() {
	l.n = l.start
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Policy   string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Policy, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable; Run returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Runner executes policies. The zero value sleeps on real timers.
type Runner struct {
	timer backoff.Timer
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimer substitutes the timer used between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(r *Runner) {
		r.timer = t
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run calls op until it returns nil, returns a Permanent error, the policy
// runs out of attempts, or ctx is done. op receives the 1-based attempt.
func (r *Runner) Run(ctx context.Context, p Policy, op func(attempt int) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	if p.DelayFirst {
		if err := r.wait(ctx, p.Delay); err != nil {
			return err
		}
	}

	attempt := 0
	var last error
	err := backoff.RetryNotifyWithTimer(func() error {
		attempt++
		err := op(attempt)
		if err != nil {
			last = err
		}
		return err
	}, backoff.WithContext(p.backOff(), ctx), func(err error, next time.Duration) {
		logging.Debug("retrying", "policy", p.Name, "attempt", attempt, "of", p.Attempts, "next", next, "error", err)
	}, r.timer)

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	var perm *backoff.PermanentError
	if errors.As(last, &perm) {
		return err
	}
	return &ExhaustedError{Policy: p.Name, Attempts: attempt, Err: err}
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	t := r.timer
	if t == nil {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	t.Start(d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
