package countdown

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"courier-dispatch/internal/xpkg/logger"
)

// Engine runs one countdown per processing order. Timers live in a
// collection owned by the engine instance, keyed by order id; there is no
// shared global registry. Each countdown fires its completion callback at
// most once, whether expiry is observed by the local tick loop or reported
// remotely.
type Engine struct {
	tick     time.Duration
	now      func() time.Time
	complete func(orderID int64)
	onTick   func(orderID int64, remaining time.Duration)
	mylog    *logger.Logger

	mu     sync.Mutex
	timers map[int64]*timer
}

type timer struct {
	eta  time.Time
	stop chan struct{}
	done bool
}

type Config struct {
	// Tick defaults to one second.
	Tick time.Duration
	// Now defaults to time.Now; tests inject a fake clock.
	Now func() time.Time
}

func New(cfg Config, complete func(orderID int64), onTick func(orderID int64, remaining time.Duration), mylog *logger.Logger) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if mylog == nil {
		mylog = logger.Nop()
	}
	return &Engine{
		tick:     cfg.Tick,
		now:      cfg.Now,
		complete: complete,
		onTick:   onTick,
		mylog:    mylog,
		timers:   make(map[int64]*timer),
	}
}

// Start begins a countdown for the order. Re-entering a screen must not
// duplicate timers: starting an order that is already running is a no-op.
func (e *Engine) Start(orderID int64, eta time.Time) {
	e.mu.Lock()
	if _, running := e.timers[orderID]; running {
		e.mu.Unlock()
		return
	}
	t := &timer{eta: eta, stop: make(chan struct{})}
	e.timers[orderID] = t
	e.mu.Unlock()

	e.mylog.Action("countdown_start").Debug("countdown running",
		zap.Int64("order_id", orderID), zap.Time("eta", eta))
	go e.run(orderID, t)
}

// Cancel drops the timer without firing completion: the order left
// processing through some other path.
func (e *Engine) Cancel(orderID int64) {
	e.mu.Lock()
	t, ok := e.timers[orderID]
	if ok && !t.done {
		t.done = true
		delete(e.timers, orderID)
		close(t.stop)
	}
	e.mu.Unlock()
}

// ObserveExpiry handles an externally-received expiry signal. It goes
// through the same single-fire guard as the tick loop, so seeing expiry
// both locally and remotely still completes exactly once.
func (e *Engine) ObserveExpiry(orderID int64) {
	e.fire(orderID)
}

// Running reports whether a countdown exists for the order.
func (e *Engine) Running(orderID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[orderID]
	return ok
}

// Remaining returns the clamped time left for a running countdown.
func (e *Engine) Remaining(orderID int64) (time.Duration, bool) {
	e.mu.Lock()
	t, ok := e.timers[orderID]
	e.mu.Unlock()
	if !ok {
		return 0, false
	}
	return clamp(t.eta.Sub(e.now())), true
}

// Stop cancels every running countdown, e.g. on logout.
func (e *Engine) Stop() {
	e.mu.Lock()
	for id, t := range e.timers {
		if !t.done {
			t.done = true
			close(t.stop)
		}
		delete(e.timers, id)
	}
	e.mu.Unlock()
}

func (e *Engine) run(orderID int64, t *timer) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			remaining := clamp(t.eta.Sub(e.now()))
			if e.onTick != nil {
				e.onTick(orderID, remaining)
			}
			if remaining <= 0 {
				e.fire(orderID)
				return
			}
		case <-t.stop:
			return
		}
	}
}

// fire completes the countdown exactly once. The done flag flips under the
// lock before the callback runs, so concurrent observers cannot double-fire.
func (e *Engine) fire(orderID int64) {
	e.mu.Lock()
	t, ok := e.timers[orderID]
	if !ok || t.done {
		e.mu.Unlock()
		return
	}
	t.done = true
	delete(e.timers, orderID)
	close(t.stop)
	e.mu.Unlock()

	e.mylog.Action("countdown_expired").Debug("countdown expired",
		zap.Int64("order_id", orderID))
	if e.complete != nil {
		e.complete(orderID)
	}
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// FormatRemaining renders a duration as minutes:seconds, never negative.
func FormatRemaining(d time.Duration) string {
	d = clamp(d)
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
