package testutil

import "sync"

// ManualClock is a capture clock for tests. It returns a fixed reading until
// moved with Set or Advance, so scenarios can place lines at exact
// microsecond timestamps.
//
// With a non-zero step, every Now call advances the reading by step after
// returning it.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu   sync.Mutex
	now  int64
	step int64
}

// NewManualClock creates a clock reading start.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// NewSteppingClock creates a clock reading start that advances by step after
// every call to Now.
func NewSteppingClock(start, step int64) *ManualClock {
	return &ManualClock{now: start, step: step}
}

// Now returns the current reading.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now += c.step
	return now
}

// Set moves the clock to us. Moving it backwards is allowed so tests can
// exercise ordering edge cases; production clocks never do this.
func (c *ManualClock) Set(us int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = us
}

// Advance moves the clock forward by d microseconds.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Current returns the reading without stepping.
func (c *ManualClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
