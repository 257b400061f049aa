package store

import (
	"sync/atomic"
	"time"
)

// ClockSourceSystem names the default capture clock in investigation metadata.
const ClockSourceSystem = "system-monotonic"

// Clock stamps captured lines and widget versions in microseconds.
//
// Readings must be non-decreasing. Implementations must be safe for
// concurrent use.
type Clock interface {
	Now() int64
}

// flooredClock is implemented by clocks that can be told the latest
// timestamp already present in a reopened investigation.
type flooredClock interface {
	Observe(us int64)
}

// SystemClock reads wall time once at construction and advances it with the
// monotonic clock, so wall clock steps never move a reading backwards.
//
// Thread-safety: SystemClock is safe for concurrent use (atomic operations).
type SystemClock struct {
	base time.Time
	last atomic.Int64
}

// NewSystemClock creates a clock anchored at the current wall time.
func NewSystemClock() *SystemClock {
	return &SystemClock{base: time.Now()}
}

// Now returns the current reading in microseconds since the Unix epoch.
// Concurrent callers may observe equal readings, never a smaller one.
func (c *SystemClock) Now() int64 {
	now := c.base.UnixMicro() + time.Since(c.base).Microseconds()
	for {
		prev := c.last.Load()
		if now <= prev {
			return prev
		}
		if c.last.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// Observe raises the clock floor to us. Used on open so a new session never
// stamps earlier than data already recorded.
func (c *SystemClock) Observe(us int64) {
	for {
		prev := c.last.Load()
		if us <= prev || c.last.CompareAndSwap(prev, us) {
			return
		}
	}
}
