package countdown

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type completions struct {
	mu    sync.Mutex
	fired []int64
}

func (c *completions) record(orderID int64) {
	c.mu.Lock()
	c.fired = append(c.fired, orderID)
	c.mu.Unlock()
}

func (c *completions) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fired)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCountdownFiresOnExpiry(t *testing.T) {
	clock := newFakeClock()
	done := &completions{}
	e := New(Config{Tick: time.Millisecond, Now: clock.Now}, done.record, nil, nil)
	defer e.Stop()

	e.Start(7, clock.Now().Add(time.Minute))
	if !e.Running(7) {
		t.Fatal("countdown should be running")
	}

	clock.Advance(time.Minute + time.Second)
	waitFor(t, func() bool { return done.count() == 1 })

	if e.Running(7) {
		t.Error("expired countdown still registered")
	}
}

func TestCountdownFiresAtMostOnce(t *testing.T) {
	clock := newFakeClock()
	done := &completions{}
	e := New(Config{Tick: time.Millisecond, Now: clock.Now}, done.record, nil, nil)
	defer e.Stop()

	e.Start(3, clock.Now().Add(10*time.Millisecond))
	clock.Advance(time.Second)

	// A remote expiry report races the local tick loop.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.ObserveExpiry(3)
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return done.count() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := done.count(); got != 1 {
		t.Errorf("completion fired %d times, want exactly 1", got)
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	clock := newFakeClock()
	e := New(Config{Tick: time.Hour, Now: clock.Now}, nil, nil, nil)
	defer e.Stop()

	first := clock.Now().Add(5 * time.Minute)
	e.Start(1, first)
	e.Start(1, clock.Now().Add(90*time.Minute))

	remaining, ok := e.Remaining(1)
	if !ok {
		t.Fatal("countdown should be running")
	}
	if remaining != 5*time.Minute {
		t.Errorf("second Start replaced the running timer: remaining = %v", remaining)
	}
}

func TestCancelSuppressesCompletion(t *testing.T) {
	clock := newFakeClock()
	done := &completions{}
	e := New(Config{Tick: time.Millisecond, Now: clock.Now}, done.record, nil, nil)
	defer e.Stop()

	e.Start(9, clock.Now().Add(time.Minute))
	e.Cancel(9)
	clock.Advance(2 * time.Minute)

	time.Sleep(20 * time.Millisecond)
	if done.count() != 0 {
		t.Error("cancelled countdown fired completion")
	}
	if e.Running(9) {
		t.Error("cancelled countdown still registered")
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	clock := newFakeClock()
	e := New(Config{Tick: time.Hour, Now: clock.Now}, nil, nil, nil)
	defer e.Stop()

	e.Start(4, clock.Now().Add(-time.Minute))
	remaining, ok := e.Remaining(4)
	if !ok {
		t.Fatal("countdown should be registered")
	}
	if remaining != 0 {
		t.Errorf("remaining = %v, want 0 for a past eta", remaining)
	}
}

func TestObserveExpiryWithoutTimerIsNoop(t *testing.T) {
	done := &completions{}
	e := New(Config{}, done.record, nil, nil)
	defer e.Stop()

	e.ObserveExpiry(42)
	if done.count() != 0 {
		t.Error("expiry fired for an order with no countdown")
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-5 * time.Second, "00:00"},
		{59 * time.Second, "00:59"},
		{time.Minute, "01:00"},
		{14*time.Minute + 7*time.Second, "14:07"},
		{2 * time.Hour, "120:00"},
	}
	for _, tc := range tests {
		if got := FormatRemaining(tc.in); got != tc.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
