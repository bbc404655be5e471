package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/dispatch/domain/models"
)

type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// UpsertClaim writes the audit row for a claim. The (order_id, courier_id)
// unique pair makes a retried write land on the same row instead of
// duplicating it.
func (r *HistoryRepo) UpsertClaim(ctx context.Context, rec models.DeliveryHistory) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_history (
			order_id, order_number, courier_id, customer_name,
			delivery_address, amount, status, accepted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'accepted', $7)
		ON CONFLICT (order_id, courier_id) DO UPDATE
		SET order_number = EXCLUDED.order_number,
		    customer_name = EXCLUDED.customer_name,
		    delivery_address = EXCLUDED.delivery_address,
		    amount = EXCLUDED.amount,
		    accepted_at = EXCLUDED.accepted_at
	`, rec.OrderID, rec.OrderNumber, rec.CourierID, rec.CustomerName,
		rec.DeliveryAddress, rec.Amount, rec.AcceptedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert history record: %w", err)
	}
	return nil
}

func (r *HistoryRepo) SetETANote(ctx context.Context, orderID, courierID int64, eta time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE delivery_history
		SET eta_note = $3
		WHERE order_id = $1 AND courier_id = $2
	`, orderID, courierID, eta)
	if err != nil {
		return fmt.Errorf("failed to set eta note: %w", err)
	}
	return nil
}

func (r *HistoryRepo) MarkCompleted(ctx context.Context, orderID, courierID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE delivery_history
		SET status = 'completed', completed_at = $3
		WHERE order_id = $1 AND courier_id = $2
	`, orderID, courierID, at)
	if err != nil {
		return fmt.Errorf("failed to mark history completed: %w", err)
	}
	return nil
}

func (r *HistoryRepo) ListByCourier(ctx context.Context, courierID int64) ([]models.DeliveryHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, order_number, courier_id, customer_name,
		       delivery_address, amount, status, eta_note, accepted_at, completed_at
		FROM delivery_history
		WHERE courier_id = $1
		ORDER BY accepted_at DESC
	`, courierID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := make([]models.DeliveryHistory, 0)
	for rows.Next() {
		var h models.DeliveryHistory
		err := rows.Scan(
			&h.ID, &h.OrderID, &h.OrderNumber, &h.CourierID, &h.CustomerName,
			&h.DeliveryAddress, &h.Amount, &h.Status, &h.ETANote,
			&h.AcceptedAt, &h.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, h)
	}
	return records, rows.Err()
}
