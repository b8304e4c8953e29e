// Package clock abstracts wall time and one-shot timers so that the pump
// and schedule logic can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the current time and one-shot callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (Real) or from Advance (Fake)
	// once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Real is the Clock backed by the time package.
type Real struct{}

// Now implements Clock.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Fake is a manually advanced Clock. Callbacks run synchronously inside
// Advance, outside the Fake's lock, so they may arm new timers.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *Fake
	due     time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewFake returns a Fake whose current time is start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now implements Clock.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements Clock.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{c: c, due: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due
// in order of due time. The clock reads each timer's due time while its
// callback runs.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.nextDueLocked(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		t.fired = true
		c.now = t.due
		c.removeLocked(t)
		c.mu.Unlock()

		t.f()
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDue returns the due time of the earliest pending timer.
func (c *Fake) NextDue() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return time.Time{}, false
	}
	c.sortLocked()
	return c.timers[0].due, true
}

func (c *Fake) nextDueLocked(target time.Time) *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	c.sortLocked()
	if t := c.timers[0]; !t.due.After(target) {
		return t
	}
	return nil
}

func (c *Fake) sortLocked() {
	sort.Slice(c.timers, func(i, j int) bool {
		if c.timers[i].due.Equal(c.timers[j].due) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].due.Before(c.timers[j].due)
	})
}

func (c *Fake) removeLocked(t *fakeTimer) {
	for i, p := range c.timers {
		if p == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	t.c.removeLocked(t)
	return true
}
