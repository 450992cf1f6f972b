// Package timeutil provides a testable abstraction over time operations.
package timeutil

import (
	"sort"
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// AfterFunc waits for the duration to elapse and then calls f.
	// The returned Timer can be used to cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer represents a single scheduled callback.
type Timer interface {
	// Stop prevents the Timer from firing. It returns false if the timer
	// already fired or was stopped.
	Stop() bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// AfterFunc calls f in its own goroutine after d.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MockClock is a manually controlled clock for testing.
// Callbacks run synchronously on the goroutine calling Advance.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*MockTimer
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// AfterFunc schedules f to run once the clock has been advanced past d.
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &MockTimer{
		clock:    c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		fn:       f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the mock clock forward by d, firing every callback whose
// deadline falls inside the window in deadline order. Callbacks scheduled
// by a firing callback are honoured if they also fall inside the window.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.compactLocked()
			c.mu.Unlock()
			return
		}
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		next.fired = true
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// Pending returns the number of callbacks that are scheduled and have
// neither fired nor been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if t.active() {
			n++
		}
	}
	return n
}

func (c *MockClock) nextDueLocked(target time.Time) *MockTimer {
	var due []*MockTimer
	for _, t := range c.timers {
		if t.active() && !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}

func (c *MockClock) compactLocked() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.active() {
			live = append(live, t)
		}
	}
	c.timers = live
}

// MockTimer is a manually controlled timer for testing.
type MockTimer struct {
	clock    *MockClock
	deadline time.Time
	seq      uint64
	fn       func()
	stopped  bool
	fired    bool
}

// Stop prevents the timer from firing.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := t.active()
	t.stopped = true
	return wasActive
}

// active must be called with the owning clock's lock held.
func (t *MockTimer) active() bool {
	return !t.stopped && !t.fired
}
