package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant a DeterministicClock returns unless told
// otherwise.
var DefaultEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock provides a thread-safe stepping wall clock for tests.
//
// Each call to Now returns the current instant and then advances by step,
// so every flush group in a run gets a distinct, predictable timestamp.
// The clock can be reset for test reuse so the same scenario produces
// byte-identical traces.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	now   time.Time
}

// NewDeterministicClock creates a clock starting at start (DefaultEpoch when
// zero) that advances by step (one second when not positive).
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	if step <= 0 {
		step = time.Second
	}
	start = start.UTC()
	return &DeterministicClock{start: start, step: step, now: start}
}

// Now returns the current instant and advances the clock.
//
// Monotonic: always returns the previous value plus step, never decreases.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the instant the next call to Now will return.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
