package coordinator

import "sync/atomic"

// Clock is a monotonic logical clock stamping settlements.
//
// Every settlement gets a strictly increasing seq, which becomes the
// version of the cache entry it writes and the Seq of its request state.
// Wall time is never used for ordering.
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

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
