package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrBadEnvelope = errors.New("malformed message envelope")
	ErrUnknownType = errors.New("unknown message type")
)

type IdentifyPayload struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

type SubscribePayload struct {
	Channel string `json:"channel"`
}

type IdentifiedPayload struct {
	UserID    int64  `json:"userId"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

type ForceLogoutPayload struct {
	Reason string `json:"reason"`
}

// OrderPayload carries order fields for NEW_ORDER_AVAILABLE and
// ORDER_UPDATED pushes.
type OrderPayload struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"order_number"`
	ShopID          int64           `json:"shop_id"`
	Status          string          `json:"status"`
	CourierID       *int64          `json:"courier_id"`
	ETA             *time.Time      `json:"eta,omitempty"`
	CustomerName    string          `json:"customer_name,omitempty"`
	DeliveryAddress string          `json:"delivery_address,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
}

// CountdownPayload serves both COUNTDOWN_STARTED and COUNTDOWN_UPDATE.
// Updates may carry only id and eta; OrderRef resolves the order key.
type CountdownPayload struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id,omitempty"`
	ETA       time.Time `json:"eta"`
	CourierID int64     `json:"courier_id,omitempty"`
}

// OrderRef returns the order id the countdown belongs to.
func (c CountdownPayload) OrderRef() int64 {
	if c.OrderID != 0 {
		return c.OrderID
	}
	return c.ID
}

type NotificationPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Event is the normalized inbound event, one internal shape regardless of
// which wire variant it arrived in. Exactly one payload pointer is set,
// matching Type.
type Event struct {
	Type         string
	Identify     *IdentifyPayload
	Subscribe    *SubscribePayload
	Identified   *IdentifiedPayload
	ForceLogout  *ForceLogoutPayload
	Order        *OrderPayload
	Countdown    *CountdownPayload
	Notification *NotificationPayload
}

// Decode parses a raw push message. The canonical nested shape is tried
// first; when the envelope carries no payload object the remaining top-level
// fields are decoded as the legacy flattened shape. Unknown types return
// ErrUnknownType with the type preserved so callers can log it.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrBadEnvelope)
	}

	body := []byte(env.Payload)
	if len(body) == 0 || string(body) == "null" {
		// Legacy flattened shape: payload fields live at the top level
		// next to "type". The extra "type" key is ignored by unmarshal.
		body = raw
	}

	ev := Event{Type: env.Type}
	var err error
	switch env.Type {
	case TypeIdentify:
		ev.Identify = &IdentifyPayload{}
		err = json.Unmarshal(body, ev.Identify)
	case TypeSubscribe:
		ev.Subscribe = &SubscribePayload{}
		err = json.Unmarshal(body, ev.Subscribe)
	case TypeIdentified:
		ev.Identified = &IdentifiedPayload{}
		err = json.Unmarshal(body, ev.Identified)
	case TypeForceLogout:
		ev.ForceLogout = &ForceLogoutPayload{}
		err = json.Unmarshal(body, ev.ForceLogout)
	case TypeNewOrderAvailable, TypeOrderUpdated:
		ev.Order = &OrderPayload{}
		err = json.Unmarshal(body, ev.Order)
	case TypeCountdownStarted, TypeCountdownUpdate:
		ev.Countdown = &CountdownPayload{}
		err = json.Unmarshal(body, ev.Countdown)
	case TypeNotification:
		ev.Notification = &NotificationPayload{}
		err = json.Unmarshal(body, ev.Notification)
	default:
		return ev, fmt.Errorf("%w: %s", ErrUnknownType, env.Type)
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: decode %s: %v", ErrBadEnvelope, env.Type, err)
	}
	return ev, nil
}
