package lifecycle

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a manually-advanced Clock for deterministic poll-interval
// and backoff tests.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock starts the clock at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and fires any ticker whose interval has
// elapsed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.maybeFire(now)
	}
}

func (c *FakeClock) Ticker(d time.Duration) Ticker {
	t := &fakeTicker{interval: d, ch: make(chan time.Time, 1)}

	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()

	return t
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.Advance(d)
		return nil
	}
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now().Add(d)
	return ch
}

type fakeTicker struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	stopped  bool
	ch       chan time.Time
}

func (t *fakeTicker) maybeFire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	if t.last.IsZero() {
		t.last = now
		return
	}

	if now.Sub(t.last) >= t.interval {
		t.last = now

		select {
		case t.ch <- now:
		default:
		}
	}
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Reset(d time.Duration) {
	t.mu.Lock()
	t.interval = d
	t.mu.Unlock()
}
