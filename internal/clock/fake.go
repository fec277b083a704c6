package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests: Now is whatever was last set or
// advanced, and every ticker it hands out is driven manually through
// Advance. After is not: its channel already holds Now+d when returned, so
// it fires at once. Safe for concurrent use, since the code under test reads
// Now from its own goroutines while the test advances time.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock seeded at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d and fires any ticker whose period
// has elapsed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	for _, t := range f.tickers {
		t.advance(d, f.now)
	}
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{period: d, ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)
	return ch
}

type fakeTicker struct {
	mu      sync.Mutex
	period  time.Duration
	elapsed time.Duration
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) advance(d time.Duration, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.elapsed += d
	for t.elapsed >= t.period {
		t.elapsed -= t.period
		select {
		case t.ch <- now:
		default:
		}
	}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = d
	t.elapsed = 0
	t.stopped = false
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}
