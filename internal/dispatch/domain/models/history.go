package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryHistory is the audit record written once per claim. It snapshots
// customer details at claim time and doubles as the courier-filtered read
// path for reporting.
type DeliveryHistory struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CourierID       int64           `json:"courier_id"`
	CustomerName    string          `json:"customer_name"`
	DeliveryAddress string          `json:"delivery_address"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	ETANote         *time.Time      `json:"eta_note"`
	AcceptedAt      time.Time       `json:"accepted_at"`
	CompletedAt     *time.Time      `json:"completed_at"`
}
