package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
	"courier-dispatch/internal/xpkg/logger"
	"courier-dispatch/internal/xpkg/metrics"
)

// DispatchService coordinates the order lifecycle: shop creation, courier
// claim, eta commitment and completion. Every mutation goes through a
// conditional write on the order store; the store row is the sole truth for
// ownership.
type DispatchService struct {
	orderRepo   core.IOrderRepo
	historyRepo core.IHistoryRepo
	broadcaster core.IBroadcaster
	mylog       *logger.Logger

	now func() time.Time
}

func NewDispatchService(
	orderRepo core.IOrderRepo,
	historyRepo core.IHistoryRepo,
	broadcaster core.IBroadcaster,
	mylog *logger.Logger,
) *DispatchService {
	return &DispatchService{
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		broadcaster: broadcaster,
		mylog:       mylog,
		now:         time.Now,
	}
}

// CreateOrder inserts a pending order for a shop and announces it to
// couriers and dispatch admins.
func (s *DispatchService) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (models.Order, error) {
	mylog := s.mylog.Action("create_order")

	order, err := s.orderRepo.Create(ctx, req)
	if err != nil {
		mylog.Error("failed to save order", err)
		return models.Order{}, fmt.Errorf("cannot save order: %w", err)
	}
	mylog.Info("order created", zap.String("order_number", order.OrderNumber))

	s.broadcast(ctx, dto.TypeNewOrderAvailable, order, []dto.Target{
		{Role: core.RoleCourier},
		{Role: core.RoleAdmin},
	})
	return order, nil
}

// Claim attempts to take ownership of a pending order for the courier.
// AlreadyTaken is an expected outcome under contention: callers must resync
// their unclaimed list, never retry the same order in a loop.
func (s *DispatchService) Claim(ctx context.Context, orderID, courierID int64) (core.ClaimOutcome, error) {
	mylog := s.mylog.Action("claim").With("order_id", fmt.Sprint(orderID))
	start := s.now()
	defer func() {
		metrics.ClaimDuration.Observe(s.now().Sub(start).Seconds())
	}()

	// Short-circuit: no write attempted when the order is visibly gone.
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != core.StatusPending || order.Claimed() {
		metrics.ClaimsTotal.WithLabelValues(string(core.OutcomeAlreadyTaken)).Inc()
		return core.OutcomeAlreadyTaken, nil
	}

	order, ok, err := s.orderRepo.ClaimPending(ctx, orderID, courierID)
	if err != nil {
		mylog.Error("claim write failed", err)
		return "", err
	}
	if !ok {
		// Lost the race. Not an error.
		metrics.ClaimsTotal.WithLabelValues(string(core.OutcomeAlreadyTaken)).Inc()
		return core.OutcomeAlreadyTaken, nil
	}

	// Best-effort audit write. A failure is logged and counted but never
	// unwinds the claim: the conditional write above is the sole truth.
	go s.recordClaim(order, courierID)

	s.broadcast(ctx, dto.TypeOrderUpdated, order, orderAudience(order))

	metrics.ClaimsTotal.WithLabelValues(string(core.OutcomeClaimed)).Inc()
	mylog.Info("order claimed", zap.Int64("courier_id", courierID))
	return core.OutcomeClaimed, nil
}

func (s *DispatchService) recordClaim(order models.Order, courierID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), core.AuditTimeoutSec*time.Second)
	defer cancel()

	rec := models.DeliveryHistory{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		CourierID:       courierID,
		CustomerName:    order.CustomerName,
		DeliveryAddress: order.DeliveryAddress,
		Amount:          order.Amount,
		Status:          core.HistoryAccepted,
		AcceptedAt:      s.now().UTC(),
	}
	if err := s.historyRepo.UpsertClaim(ctx, rec); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		s.mylog.Action("record_claim").Error("history write failed, claim stands", err,
			zap.Int64("order_id", order.ID))
	}
}

// SetCompletionTime commits the courier to delivering within the given
// minutes: the order moves to processing and the countdown eta is
// broadcast to every role observing it.
func (s *DispatchService) SetCompletionTime(ctx context.Context, orderID, courierID int64, minutes int) (models.Order, error) {
	mylog := s.mylog.Action("set_completion_time")

	if minutes <= 0 || minutes > core.MaxETAMinutes {
		return models.Order{}, core.ErrValidation
	}

	eta := s.now().UTC().Add(time.Duration(minutes) * time.Minute)
	order, ok, err := s.orderRepo.SetETA(ctx, orderID, courierID, eta)
	if err != nil {
		mylog.Error("eta write failed", err)
		return models.Order{}, err
	}
	if !ok {
		return models.Order{}, s.explainRejection(ctx, orderID, courierID)
	}

	go func() {
		auditCtx, cancel := context.WithTimeout(context.Background(), core.AuditTimeoutSec*time.Second)
		defer cancel()
		if err := s.historyRepo.SetETANote(auditCtx, orderID, courierID, eta); err != nil {
			metrics.AuditWriteFailuresTotal.Inc()
			s.mylog.Action("set_eta_note").Error("history eta note failed", err)
		}
	}()

	s.broadcastCountdown(ctx, order)
	mylog.Info("countdown started", zap.Int64("order_id", orderID), zap.Time("eta", eta))
	return order, nil
}

// Complete marks an owned order delivered. Completing an already delivered
// order is a no-op success so that the countdown expiry and a manual action
// can both fire without one of them erroring.
func (s *DispatchService) Complete(ctx context.Context, orderID, courierID int64) (models.Order, error) {
	mylog := s.mylog.Action("complete")

	order, ok, err := s.orderRepo.CompleteOwned(ctx, orderID, courierID)
	if err != nil {
		mylog.Error("complete write failed", err)
		return models.Order{}, err
	}
	if !ok {
		current, getErr := s.orderRepo.GetByID(ctx, orderID)
		if getErr != nil {
			return models.Order{}, getErr
		}
		if current.Status == core.StatusDelivered &&
			current.CourierID != nil && *current.CourierID == courierID {
			// Idempotent: already delivered by this courier.
			return current, nil
		}
		return models.Order{}, s.explainRejection(ctx, orderID, courierID)
	}

	go func() {
		auditCtx, cancel := context.WithTimeout(context.Background(), core.AuditTimeoutSec*time.Second)
		defer cancel()
		if err := s.historyRepo.MarkCompleted(auditCtx, orderID, courierID, s.now().UTC()); err != nil {
			metrics.AuditWriteFailuresTotal.Inc()
			s.mylog.Action("mark_completed").Error("history completion failed", err)
		}
	}()

	s.broadcast(ctx, dto.TypeOrderUpdated, order, orderAudience(order))
	mylog.Info("order delivered", zap.Int64("order_id", orderID))
	return order, nil
}

// Cancel terminally cancels an order still in pending or accepted.
func (s *DispatchService) Cancel(ctx context.Context, orderID int64) (models.Order, error) {
	mylog := s.mylog.Action("cancel")

	order, ok, err := s.orderRepo.Cancel(ctx, orderID)
	if err != nil {
		mylog.Error("cancel write failed", err)
		return models.Order{}, err
	}
	if !ok {
		if _, getErr := s.orderRepo.GetByID(ctx, orderID); getErr != nil {
			return models.Order{}, getErr
		}
		return models.Order{}, core.ErrInvalidTransition
	}

	s.broadcast(ctx, dto.TypeOrderUpdated, order, orderAudience(order))
	mylog.Info("order cancelled", zap.Int64("order_id", orderID))
	return order, nil
}

// CompleteOverdue is the server-side backstop for countdown expiry: any
// processing order whose eta has passed gets completed even when no client
// is connected to fire it.
func (s *DispatchService) CompleteOverdue(ctx context.Context) (int, error) {
	overdue, err := s.orderRepo.ListOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, order := range overdue {
		if order.CourierID == nil {
			continue
		}
		if _, err := s.Complete(ctx, order.ID, *order.CourierID); err != nil {
			s.mylog.Action("complete_overdue").Error("overdue completion failed", err,
				zap.Int64("order_id", order.ID))
			continue
		}
		metrics.OverdueCompletionsTotal.Inc()
		completed++
	}
	return completed, nil
}

func (s *DispatchService) GetOrder(ctx context.Context, orderID int64) (models.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

func (s *DispatchService) ListUnclaimed(ctx context.Context) ([]models.Order, error) {
	return s.orderRepo.ListUnclaimed(ctx)
}

func (s *DispatchService) ListByCourier(ctx context.Context, courierID int64, status string) ([]models.Order, error) {
	return s.orderRepo.ListByCourier(ctx, courierID, status)
}

func (s *DispatchService) HistoryByCourier(ctx context.Context, courierID int64) ([]models.DeliveryHistory, error) {
	return s.historyRepo.ListByCourier(ctx, courierID)
}

// explainRejection turns a failed conditional write into the typed error
// the caller should render.
func (s *DispatchService) explainRejection(ctx context.Context, orderID, courierID int64) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CourierID == nil || *order.CourierID != courierID {
		return core.ErrNotOwner
	}
	return core.ErrInvalidTransition
}

func orderAudience(order models.Order) []dto.Target {
	return []dto.Target{
		{Role: core.RoleShop, UserID: order.ShopID},
		{Role: core.RoleCourier},
		{Role: core.RoleAdmin},
	}
}

func (s *DispatchService) broadcast(ctx context.Context, msgType string, order models.Order, targets []dto.Target) {
	payload := dto.OrderPayload{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		ShopID:          order.ShopID,
		Status:          order.Status,
		CourierID:       order.CourierID,
		ETA:             order.ETA,
		CustomerName:    order.CustomerName,
		DeliveryAddress: order.DeliveryAddress,
		Amount:          order.Amount,
	}
	env, err := dto.NewEnvelope(msgType, payload)
	if err != nil {
		s.mylog.Action("broadcast").Error("failed to build envelope", err)
		return
	}
	s.publish(ctx, dto.Broadcast{Targets: targets, Event: env})
}

func (s *DispatchService) broadcastCountdown(ctx context.Context, order models.Order) {
	if order.ETA == nil || order.CourierID == nil {
		return
	}
	payload := dto.CountdownPayload{
		ID:        order.ID,
		OrderID:   order.ID,
		ETA:       *order.ETA,
		CourierID: *order.CourierID,
	}
	env, err := dto.NewEnvelope(dto.TypeCountdownStarted, payload)
	if err != nil {
		s.mylog.Action("broadcast_countdown").Error("failed to build envelope", err)
		return
	}
	s.publish(ctx, dto.Broadcast{Targets: orderAudience(order), Event: env})
}

func (s *DispatchService) publish(ctx context.Context, b dto.Broadcast) {
	if err := s.broadcaster.Publish(ctx, b); err != nil {
		// Broadcast failure does not unwind the store write; clients
		// converge on the next resync.
		if !errors.Is(err, context.Canceled) {
			s.mylog.Action("publish").Error("broadcast failed", err)
		}
	}
}
