package core

import (
	"context"
	"time"

	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
)

type IOrderRepo interface {
	Create(ctx context.Context, req dto.CreateOrderRequest) (models.Order, error)
	GetByID(ctx context.Context, id int64) (models.Order, error)

	// ClaimPending conditionally assigns the order to the courier. The
	// write applies only while courier_id is still null and status is
	// pending; ok is false when the condition no longer held.
	ClaimPending(ctx context.Context, orderID, courierID int64) (models.Order, bool, error)

	// SetETA moves an accepted order owned by the courier to processing
	// with the given eta.
	SetETA(ctx context.Context, orderID, courierID int64, eta time.Time) (models.Order, bool, error)

	// CompleteOwned marks an accepted or processing order owned by the
	// courier as delivered.
	CompleteOwned(ctx context.Context, orderID, courierID int64) (models.Order, bool, error)

	// Cancel terminally cancels an order still in pending or accepted.
	Cancel(ctx context.Context, orderID int64) (models.Order, bool, error)

	ListUnclaimed(ctx context.Context) ([]models.Order, error)
	ListByCourier(ctx context.Context, courierID int64, status string) ([]models.Order, error)
	ListOverdue(ctx context.Context, now time.Time) ([]models.Order, error)
}

type IHistoryRepo interface {
	// UpsertClaim inserts the audit row for a claim; a retry of the same
	// order+courier pair updates in place instead of duplicating.
	UpsertClaim(ctx context.Context, rec models.DeliveryHistory) error
	SetETANote(ctx context.Context, orderID, courierID int64, eta time.Time) error
	MarkCompleted(ctx context.Context, orderID, courierID int64, at time.Time) error
	ListByCourier(ctx context.Context, courierID int64) ([]models.DeliveryHistory, error)
}

type IUserRepo interface {
	Get(ctx context.Context, id int64) (models.User, error)
}
