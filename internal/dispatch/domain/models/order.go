package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the unit of work. courier_id is null exactly while the order is
// pending; eta is set only while processing.
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	ShopID          int64           `json:"shop_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	DeliveryAddress string          `json:"delivery_address"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	CourierID       *int64          `json:"courier_id"`
	ETA             *time.Time      `json:"eta"`
	AssignedAt      *time.Time      `json:"assigned_at"`
	DeliveredAt     *time.Time      `json:"delivered_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Claimed reports whether a courier currently holds the order.
func (o Order) Claimed() bool {
	return o.CourierID != nil
}
