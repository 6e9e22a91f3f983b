package time

import (
	"context"
	"sort"
	"sync"
	"time"
)

// deterministic clock for tests
// time only moves when Sleep or Advance is called, and callbacks registered with At
// run at their scheduled instant while time moves past them
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []scheduled
	seq     int
}

type scheduled struct {
	at  time.Time
	seq int
	fn  func()
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// advances the clock by d without blocking
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return ctx.Err()
}

// registers fn to run once the clock reaches t
// callbacks run on the goroutine that advances the clock, with the clock set to t
func (c *FakeClock) At(t time.Time, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.pending = append(c.pending, scheduled{at: t, seq: c.seq, fn: fn})
}

// registers fn to run after d has elapsed from the current fake time
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) {
	c.At(c.Now().Add(d), fn)
}

// moves the clock forward by d, firing due callbacks in time order
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		next, ok := c.popDue(target)
		if !ok {
			break
		}
		next.fn()
	}

	c.mu.Lock()
	if target.After(c.now) {
		c.now = target
	}
	c.mu.Unlock()
}

// removes the earliest callback due at or before target and moves the clock to it
func (c *FakeClock) popDue(target time.Time) (scheduled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return scheduled{}, false
	}

	sort.Slice(c.pending, func(i, j int) bool {
		if c.pending[i].at.Equal(c.pending[j].at) {
			return c.pending[i].seq < c.pending[j].seq
		}
		return c.pending[i].at.Before(c.pending[j].at)
	})

	next := c.pending[0]
	if next.at.After(target) {
		return scheduled{}, false
	}

	c.pending = c.pending[1:]
	if next.at.After(c.now) {
		c.now = next.at
	}
	return next, true
}
