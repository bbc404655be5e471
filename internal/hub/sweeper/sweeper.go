package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"courier-dispatch/internal/dispatch/app/services"
	"courier-dispatch/internal/xpkg/logger"
)

const sweepTimeout = 30 * time.Second

// Sweeper periodically completes processing orders whose eta has passed.
// Client countdowns fire completion too; the store-level idempotent write
// makes the overlap harmless, and the sweep covers orders whose clients
// were disconnected at expiry.
type Sweeper struct {
	svc      *services.DispatchService
	schedule string
	mylog    *logger.Logger
	cron     *cron.Cron
}

func New(svc *services.DispatchService, schedule string, mylog *logger.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		schedule: schedule,
		mylog:    mylog,
	}
}

func (s *Sweeper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.mylog.Action("sweeper_started").Info("overdue sweeper scheduled",
		zap.String("schedule", s.schedule))
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	completed, err := s.svc.CompleteOverdue(ctx)
	if err != nil {
		s.mylog.Action("sweep").Error("overdue sweep failed", err)
		return
	}
	if completed > 0 {
		s.mylog.Action("sweep").Info("completed overdue orders",
			zap.Int("count", completed))
	}
}
