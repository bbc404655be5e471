package dto

import "github.com/shopspring/decimal"

type CreateOrderRequest struct {
	ShopID          int64           `json:"shop_id" validate:"required,gt=0"`
	CustomerName    string          `json:"customer_name" validate:"required,min=2,max=100"`
	CustomerPhone   string          `json:"customer_phone" validate:"required,min=5,max=32"`
	DeliveryAddress string          `json:"delivery_address" validate:"required,min=5,max=200"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
}

type ClaimRequest struct {
	CourierID int64 `json:"courier_id" validate:"required,gt=0"`
}

type ETARequest struct {
	CourierID int64 `json:"courier_id" validate:"required,gt=0"`
	Minutes   int   `json:"minutes" validate:"required,gt=0"`
}

type CompleteRequest struct {
	CourierID int64 `json:"courier_id" validate:"required,gt=0"`
}

type ClaimResponse struct {
	Outcome string `json:"outcome"`
}
