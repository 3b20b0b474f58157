// Package scheduler centralizes time so every cadence in the system —
// monitor ticks, child-order delays, retry backoff — runs against one
// clock that tests can replace with a deterministic fake.
package scheduler

import (
	"sync"
	"time"
)

// Clock is the time source used by all background loops and delays.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers clock ticks at a fixed interval.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewRealClock returns a Clock backed by the system clock.
func NewRealClock() Clock {
	return &realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }

// FakeClock is a manually advanced Clock for tests.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	tickers []*fakeTicker
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFakeClock returns a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, &waiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     f.now.Add(d),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward, firing any timers and tickers whose
// deadlines fall within the window, in deadline order.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		next, ok := f.nextDeadlineLocked(target)
		if !ok {
			break
		}
		f.now = next
		f.fireLocked()
	}

	f.now = target
	f.mu.Unlock()
}

func (f *FakeClock) nextDeadlineLocked(limit time.Time) (time.Time, bool) {
	var next time.Time
	found := false
	for _, w := range f.waiters {
		if !w.deadline.After(limit) && (!found || w.deadline.Before(next)) {
			next = w.deadline
			found = true
		}
	}
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		if !t.next.After(limit) && (!found || t.next.Before(next)) {
			next = t.next
			found = true
		}
	}
	if found && next.Before(f.now) {
		next = f.now
	}
	return next, found
}

func (f *FakeClock) fireLocked() {
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.deadline.After(f.now) {
			w.ch <- f.now
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining

	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(f.now) {
			select {
			case t.ch <- f.now:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
