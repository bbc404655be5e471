package poller

import (
	"context"
	"sync"
	"testing"
	"time"
)

type resyncCounter struct {
	mu    sync.Mutex
	calls int
}

func (r *resyncCounter) resync(context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *resyncCounter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestTriggerRespectsMinimumGap(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	rc := &resyncCounter{}
	p := New(Config{Interval: time.Hour, MinGap: 2 * time.Second, Now: clock}, rc.resync, nil)

	ctx := context.Background()
	if !p.Trigger(ctx, "manual") {
		t.Fatal("first trigger should fire")
	}
	if p.Trigger(ctx, "manual") {
		t.Error("immediate second trigger should be suppressed")
	}

	now = now.Add(time.Second)
	if p.Trigger(ctx, "manual") {
		t.Error("trigger inside the gap should be suppressed")
	}

	now = now.Add(2 * time.Second)
	if !p.Trigger(ctx, "manual") {
		t.Error("trigger after the gap should fire")
	}

	if got := rc.count(); got != 2 {
		t.Errorf("resync ran %d times, want 2", got)
	}
}

func TestBecomingVisibleTriggersResync(t *testing.T) {
	rc := &resyncCounter{}
	p := New(Config{Interval: time.Hour, MinGap: time.Millisecond}, rc.resync, nil)

	ctx := context.Background()
	p.SetVisible(ctx, false)
	if rc.count() != 0 {
		t.Fatal("hiding must not resync")
	}

	p.SetVisible(ctx, true)
	if rc.count() != 1 {
		t.Errorf("resync ran %d times after becoming visible, want 1", rc.count())
	}

	// Already visible, no transition.
	p.SetVisible(ctx, true)
	if rc.count() != 1 {
		t.Error("redundant SetVisible(true) must not resync again")
	}
}

func TestRunFiresOnIntervalWhileVisible(t *testing.T) {
	rc := &resyncCounter{}
	p := New(Config{Interval: 5 * time.Millisecond, MinGap: time.Nanosecond}, rc.resync, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for rc.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if rc.count() < 2 {
		t.Errorf("resync ran %d times, want at least 2", rc.count())
	}
}

func TestRunSkipsWhileHidden(t *testing.T) {
	rc := &resyncCounter{}
	p := New(Config{Interval: 5 * time.Millisecond, MinGap: time.Nanosecond}, rc.resync, nil)
	p.SetVisible(context.Background(), false)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()

	if rc.count() != 0 {
		t.Errorf("resync ran %d times while hidden, want 0", rc.count())
	}
}
