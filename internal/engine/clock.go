package engine

import "sync/atomic"

// Clock is the logical sequence clock that stamps emitted transitions.
//
// Transition order is defined by seq, never by frame timestamps: two
// transitions may share a TimestampMs (e.g. ForceCoast and a frame at the
// same instant) but never a seq. Replaying the same frames through a fresh
// clock yields the same sequence numbers.
//
// Clock is safe for concurrent use, although a Machine only ever calls it
// from the goroutine that owns it.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
