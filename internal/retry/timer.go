package retry

import (
	"sync"
	"time"
)

// ImmediateTimer is a backoff.Timer that fires at once and records every
// requested delay. Tests use it to assert schedules without sleeping.
type ImmediateTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

// NewImmediateTimer creates an ImmediateTimer.
func NewImmediateTimer() *ImmediateTimer {
	return &ImmediateTimer{c: make(chan time.Time, 1)}
}

func (t *ImmediateTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	select {
	case t.c <- time.Now():
	default:
	}
}

func (t *ImmediateTimer) Stop() {}

func (t *ImmediateTimer) C() <-chan time.Time {
	return t.c
}

// Delays returns the recorded delays in order.
func (t *ImmediateTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

// Reset forgets recorded delays.
func (t *ImmediateTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = nil
}
