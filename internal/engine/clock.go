package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies evaluation times.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// MonotonicClock never goes backwards: a reading earlier than the latest one
// returned (or observed) is replaced by the latest. Cron intervals are then
// never negative even when the wall clock steps back.
//
// Thread-safety: MonotonicClock is safe for concurrent use.
type MonotonicClock struct {
	base Clock
	last atomic.Int64
}

func NewMonotonicClock(base Clock) *MonotonicClock {
	return &MonotonicClock{base: base}
}

// Now returns the base reading floored at the latest reading.
func (c *MonotonicClock) Now() time.Time {
	now := c.base.Now().UTC().UnixNano()
	for {
		last := c.last.Load()
		if now <= last {
			return time.Unix(0, last).UTC()
		}
		if c.last.CompareAndSwap(last, now) {
			return time.Unix(0, now).UTC()
		}
	}
}

// Observe floors later readings at t, typically the timestamp of the stored
// cursor.
func (c *MonotonicClock) Observe(t time.Time) {
	n := t.UnixNano()
	for {
		last := c.last.Load()
		if n <= last || c.last.CompareAndSwap(last, n) {
			return
		}
	}
}

// Last returns the latest reading, zero if none.
func (c *MonotonicClock) Last() time.Time {
	n := c.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// FixedClock always reads T. It pins a tick to a chosen instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time {
	return c.T.UTC()
}
