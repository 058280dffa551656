// Package mock provides a manually driven [resilience.Clock] for tests.
//
// Typical usage:
//
//	clk := mock.NewClock(time.Unix(0, 0))
//	go func() { done <- policy.Do(ctx, clk, fn) }()
//	clk.BlockUntil(1)             // wait for the backoff timer
//	clk.Advance(100 * time.Millisecond)
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/happysentences/internal/resilience"
)

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// Clock is a fake clock whose time only moves when [Clock.Advance] is called.
// It is safe for concurrent use.
type Clock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []waiter

	// AfterCalls records the duration of every After call in order.
	AfterCalls []time.Duration
}

var _ resilience.Clock = (*Clock)(nil)

// NewClock returns a fake clock starting at start.
func NewClock(start time.Time) *Clock {
	c := &Clock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Now implements [resilience.Clock].
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After implements [resilience.Clock]. Non-positive durations fire at once.
func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AfterCalls = append(c.AfterCalls, d)
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: c.now.Add(d), ch: ch})
	c.cond.Broadcast()
	return ch
}

// Advance moves the clock forward by d and fires every timer that is due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

// BlockUntil waits until at least n timers are pending.
func (c *Clock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}

// Pending returns the number of timers that have not fired yet.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
