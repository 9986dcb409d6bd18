package dolly

import (
	"errors"
	"sort"
	"time"
)

// Scheduler is the only source of delayed work in dolly. Every wait in the
// orchestrator (decay, cooldown, transitions) goes through it.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) (Timer, error)
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports false if the timer already fired
	// or was stopped.
	Stop() bool
}

// ErrNoTimers is returned by NoTimers.After.
var ErrNoTimers = errors.New("dolly: timers unavailable")

// NoTimers is a Scheduler that cannot schedule anything. Components fall back
// to their degraded behavior when running on it.
type NoTimers struct {
	Clock func() time.Time
}

func (n NoTimers) Now() time.Time {
	if n.Clock != nil {
		return n.Clock()
	}
	return time.Now()
}

func (NoTimers) After(time.Duration, func()) (Timer, error) {
	return nil, ErrNoTimers
}

// FrameClock is a virtual-time timer queue. The host advances it once per
// frame; due callbacks run inside Advance on the caller's goroutine in due
// order, ties broken by scheduling order.
//
// FrameClock is not safe for concurrent use.
type FrameClock struct {
	now     time.Time
	seq     uint64
	pending []*frameTimer
}

type frameTimer struct {
	clock *FrameClock
	due   time.Time
	seq   uint64
	fn    func()
	done  bool
}

// NewFrameClock returns a clock reading now.
func NewFrameClock(now time.Time) *FrameClock {
	return &FrameClock{now: now}
}

// Now returns the clock's virtual time.
func (c *FrameClock) Now() time.Time { return c.now }

// After schedules fn to run once the clock has been advanced by d.
func (c *FrameClock) After(d time.Duration, fn func()) (Timer, error) {
	if fn == nil {
		return nil, errors.New("dolly: nil timer callback")
	}
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &frameTimer{clock: c, due: c.now.Add(d), seq: c.seq, fn: fn}
	c.pending = append(c.pending, t)
	return t, nil
}

// Advance moves the clock to now and runs every callback due by then.
// Callbacks may schedule further timers; those run in the same call when they
// are already due. Advancing backwards is ignored.
func (c *FrameClock) Advance(now time.Time) {
	if now.Before(c.now) {
		return
	}
	for {
		t := c.nextDue(now)
		if t == nil {
			break
		}
		c.now = t.due
		t.done = true
		c.remove(t)
		t.fn()
	}
	c.now = now
}

// Step advances the clock by d.
func (c *FrameClock) Step(d time.Duration) {
	c.Advance(c.now.Add(d))
}

// Pending returns the number of timers still waiting to fire.
func (c *FrameClock) Pending() int { return len(c.pending) }

func (c *FrameClock) nextDue(now time.Time) *frameTimer {
	if len(c.pending) == 0 {
		return nil
	}
	sort.SliceStable(c.pending, func(i, j int) bool {
		a, b := c.pending[i], c.pending[j]
		if a.due.Equal(b.due) {
			return a.seq < b.seq
		}
		return a.due.Before(b.due)
	})
	if c.pending[0].due.After(now) {
		return nil
	}
	return c.pending[0]
}

func (c *FrameClock) remove(t *frameTimer) {
	for i, p := range c.pending {
		if p == t {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

func (t *frameTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	t.clock.remove(t)
	return true
}
