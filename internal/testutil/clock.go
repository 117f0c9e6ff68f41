package testutil

import "sync"

// DeterministicClock is a resettable scheduler step counter for tests.
// It satisfies tick.Counter, and Advance lets a test skip steps without
// running routines for them.
//
// Thread-safety: safe for concurrent use.
type DeterministicClock struct {
	mu   sync.Mutex
	step int64
}

// NewDeterministicClock returns a clock whose first Next is step 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances one step and returns it.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step++
	return c.step
}

// Current returns the last step handed out.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Advance skips n steps and returns the new current step. Negative n is
// ignored.
func (c *DeterministicClock) Advance(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.step += n
	}
	return c.step
}

// Reset rewinds to step 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = 0
}
