package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders journal entries.
//
// Wall-clock stamps come from RecordStore.CurrentTime and may repeat
// (one timestamp per group); Seq never does.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), so
// one engine can serve many concurrent scopes.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to continue after the last journal entry of an existing database.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
