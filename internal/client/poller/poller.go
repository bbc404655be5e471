package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"courier-dispatch/internal/xpkg/logger"
)

// Poller drives the authoritative resync that corrects missed, duplicated
// or out-of-order pushes. It fires on a fixed interval while the view is
// visible, on regained visibility, on manual refresh, and after any lost
// claim; a minimum gap stops resync storms when triggers pile up.
type Poller struct {
	resync   func(ctx context.Context) error
	interval time.Duration
	minGap   time.Duration
	now      func() time.Time
	mylog    *logger.Logger

	mu      sync.Mutex
	last    time.Time
	visible bool
}

type Config struct {
	Interval time.Duration // defaults to 10s
	MinGap   time.Duration // defaults to 2s
	Now      func() time.Time
}

func New(cfg Config, resync func(ctx context.Context) error, mylog *logger.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = 2 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if mylog == nil {
		mylog = logger.Nop()
	}
	return &Poller{
		resync:   resync,
		interval: cfg.Interval,
		minGap:   cfg.MinGap,
		now:      cfg.Now,
		mylog:    mylog,
		visible:  true,
	}
}

// Run loops until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			visible := p.visible
			p.mu.Unlock()
			if visible {
				p.Trigger(ctx, "interval")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Trigger requests a resync now. It reports false when suppressed by the
// minimum-gap guard.
func (p *Poller) Trigger(ctx context.Context, reason string) bool {
	p.mu.Lock()
	if !p.last.IsZero() && p.now().Sub(p.last) < p.minGap {
		p.mu.Unlock()
		return false
	}
	p.last = p.now()
	p.mu.Unlock()

	if err := p.resync(ctx); err != nil {
		p.mylog.Action("resync").Error("resync failed", err, zap.String("reason", reason))
		return true
	}
	p.mylog.Action("resync").Debug("resync completed", zap.String("reason", reason))
	return true
}

// SetVisible tracks whether the owning view is on screen. Becoming visible
// triggers an immediate resync.
func (p *Poller) SetVisible(ctx context.Context, visible bool) {
	p.mu.Lock()
	was := p.visible
	p.visible = visible
	p.mu.Unlock()

	if visible && !was {
		p.Trigger(ctx, "visibility")
	}
}
