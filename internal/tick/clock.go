package tick

import "sync/atomic"

// Counter is the scheduler's logical step counter.
//
// Implemented by Clock and testutil.DeterministicClock.
type Counter interface {
	Next() int64
	Current() int64
}

// Clock is the monotonic step counter driving routine selection.
//
// Every step is stamped with a strictly increasing value, so which routines
// fire depends only on how many steps ran, never on wall-clock timing.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The scheduler's single step driver means only one goroutine typically
// calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific step.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new step.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current step without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
