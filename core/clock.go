package core

import (
	"sync/atomic"
	"time"
)

// SystemClock reads the process monotonic clock. Ticks are nanoseconds since
// the clock was created, so wall clock adjustments never move it backwards.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Read returns the time elapsed since the clock was created.
func (c *SystemClock) Read() Tick {
	return Tick(time.Since(c.start))
}

// ManualClock is a Clock that only moves when told to. It is meant for tests
// and simulations.
type ManualClock struct {
	now atomic.Int64
}

// NewManualClock returns a clock reading start.
func NewManualClock(start Tick) *ManualClock {
	c := &ManualClock{}
	c.now.Store(int64(start))
	return c
}

// Read returns the current tick.
func (c *ManualClock) Read() Tick {
	return Tick(c.now.Load())
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.now.Add(int64(d))
}

// Set moves the clock to t unless that would move it backwards.
func (c *ManualClock) Set(t Tick) {
	for {
		cur := c.now.Load()
		if int64(t) <= cur || c.now.CompareAndSwap(cur, int64(t)) {
			return
		}
	}
}
