package testutil

import "sync"

// FrameClock is a deterministic millisecond cursor for building frame
// timestamps in tests and scenarios.
//
// Unlike engine.Clock, which stamps transition seqs, FrameClock tracks
// capture time and can move backwards via Set to produce stale frames.
type FrameClock struct {
	mu  sync.Mutex
	now int64
}

// NewFrameClock creates a clock reading start.
func NewFrameClock(start int64) *FrameClock {
	return &FrameClock{now: start}
}

// Now returns the current timestamp.
func (c *FrameClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms and returns the new timestamp.
func (c *FrameClock) Advance(ms int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
	return c.now
}

// Set jumps to ts, which may be earlier than the current reading.
func (c *FrameClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// Ticks returns n timestamps every ms apart starting at the current
// reading, and leaves the clock one interval past the last of them.
func (c *FrameClock) Ticks(n int, every int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, n)
	for i := range out {
		out[i] = c.now
		c.now += every
	}
	return out
}
