package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/dispatch/app/core"
	"courier-dispatch/internal/dispatch/domain/dto"
	"courier-dispatch/internal/dispatch/domain/models"
)

const orderColumns = `
	id, order_number, shop_id, customer_name, customer_phone,
	delivery_address, amount, status, courier_id, eta,
	assigned_at, delivered_at, created_at, updated_at`

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.ShopID, &o.CustomerName, &o.CustomerPhone,
		&o.DeliveryAddress, &o.Amount, &o.Status, &o.CourierID, &o.ETA,
		&o.AssignedAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// createAttempts bounds retries when concurrent creates race to the same
// day-scoped order number.
const createAttempts = 3

// Create inserts a new pending order, generating the day-scoped order
// number ORD_YYYYMMDD_NNN from today's order count. Two concurrent creates
// can count the same total and compute the same suffix; the unique index on
// order_number rejects the loser, which recounts and retries.
func (r *OrderRepo) Create(ctx context.Context, req dto.CreateOrderRequest) (models.Order, error) {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		order, err := r.insertOrder(ctx, req)
		if err == nil {
			return order, nil
		}
		if !isUniqueViolation(err) {
			return models.Order{}, err
		}
		lastErr = err
	}
	return models.Order{}, lastErr
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *OrderRepo) insertOrder(ctx context.Context, req dto.CreateOrderRequest) (models.Order, error) {
	currentDate := time.Now().UTC().Format("20060102")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE created_at::DATE = CURRENT_DATE`,
	).Scan(&orderCount)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to count today's orders: %w", err)
	}
	orderNumber := fmt.Sprintf("ORD_%s_%03d", currentDate, orderCount+1)

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, shop_id, customer_name, customer_phone,
			delivery_address, amount, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING`+orderColumns,
		orderNumber, req.ShopID, req.CustomerName, req.CustomerPhone,
		req.DeliveryAddress, req.Amount,
	)
	order, err := scanOrder(row)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return order, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (models.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, core.ErrOrderNotFound
		}
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ClaimPending is the compare-and-set at the heart of the claim protocol:
// the row only changes while courier_id is still null. Zero rows affected
// means another courier got there first.
func (r *OrderRepo) ClaimPending(ctx context.Context, orderID, courierID int64) (models.Order, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = 'accepted', courier_id = $2, assigned_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND courier_id IS NULL AND status = 'pending'
		RETURNING`+orderColumns,
		orderID, courierID,
	)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, false, nil
		}
		return models.Order{}, false, fmt.Errorf("failed to claim order: %w", err)
	}
	return order, true, nil
}

func (r *OrderRepo) SetETA(ctx context.Context, orderID, courierID int64, eta time.Time) (models.Order, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = 'processing', eta = $3, updated_at = NOW()
		WHERE id = $1 AND courier_id = $2 AND status = 'accepted'
		RETURNING`+orderColumns,
		orderID, courierID, eta,
	)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, false, nil
		}
		return models.Order{}, false, fmt.Errorf("failed to set eta: %w", err)
	}
	return order, true, nil
}

func (r *OrderRepo) CompleteOwned(ctx context.Context, orderID, courierID int64) (models.Order, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = 'delivered', eta = NULL, delivered_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND courier_id = $2 AND status IN ('accepted', 'processing')
		RETURNING`+orderColumns,
		orderID, courierID,
	)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, false, nil
		}
		return models.Order{}, false, fmt.Errorf("failed to complete order: %w", err)
	}
	return order, true, nil
}

func (r *OrderRepo) Cancel(ctx context.Context, orderID int64) (models.Order, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'accepted')
		RETURNING`+orderColumns,
		orderID,
	)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, false, nil
		}
		return models.Order{}, false, fmt.Errorf("failed to cancel order: %w", err)
	}
	return order, true, nil
}

func (r *OrderRepo) ListUnclaimed(ctx context.Context) ([]models.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclaimed orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *OrderRepo) ListByCourier(ctx context.Context, courierID int64, status string) ([]models.Order, error) {
	q := `SELECT` + orderColumns + ` FROM orders WHERE courier_id = $1`
	args := []any{courierID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY assigned_at DESC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list courier orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListOverdue returns processing orders whose eta has passed; the sweeper
// completes them when no client did.
func (r *OrderRepo) ListOverdue(ctx context.Context, now time.Time) ([]models.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE status = 'processing' AND eta <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
