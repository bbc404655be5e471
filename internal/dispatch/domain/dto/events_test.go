package dto

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeCanonicalEnvelope(t *testing.T) {
	raw := []byte(`{
		"type": "ORDER_UPDATED",
		"payload": {
			"id": 12,
			"order_number": "ORD_20260825_004",
			"shop_id": 3,
			"status": "accepted",
			"courier_id": 7,
			"amount": "18.90"
		}
	}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != TypeOrderUpdated {
		t.Fatalf("type = %q", ev.Type)
	}
	if ev.Order == nil {
		t.Fatal("order payload not populated")
	}
	if ev.Order.ID != 12 || ev.Order.Status != "accepted" {
		t.Errorf("order = %+v", ev.Order)
	}
	if ev.Order.CourierID == nil || *ev.Order.CourierID != 7 {
		t.Errorf("courier_id = %v, want 7", ev.Order.CourierID)
	}
}

func TestDecodeLegacyFlattenedShape(t *testing.T) {
	// Older emitters merge the payload fields next to "type".
	raw := []byte(`{
		"type": "NEW_ORDER_AVAILABLE",
		"id": 5,
		"order_number": "ORD_20260825_001",
		"shop_id": 2,
		"status": "pending",
		"courier_id": null,
		"amount": "31.00"
	}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Order == nil || ev.Order.ID != 5 {
		t.Fatalf("order = %+v", ev.Order)
	}
	if ev.Order.OrderNumber != "ORD_20260825_001" {
		t.Errorf("order_number = %q", ev.Order.OrderNumber)
	}
	if ev.Order.CourierID != nil {
		t.Errorf("courier_id = %v, want nil", ev.Order.CourierID)
	}
}

func TestDecodeLegacyCountdown(t *testing.T) {
	eta := time.Date(2026, 8, 25, 13, 30, 0, 0, time.UTC)
	raw := []byte(`{"type":"COUNTDOWN_UPDATE","id":9,"eta":"2026-08-25T13:30:00Z"}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Countdown == nil {
		t.Fatal("countdown payload not populated")
	}
	if ev.Countdown.OrderRef() != 9 {
		t.Errorf("order ref = %d, want 9", ev.Countdown.OrderRef())
	}
	if !ev.Countdown.ETA.Equal(eta) {
		t.Errorf("eta = %v, want %v", ev.Countdown.ETA, eta)
	}
}

func TestDecodeCountdownPrefersOrderID(t *testing.T) {
	raw := []byte(`{"type":"COUNTDOWN_STARTED","payload":{"id":100,"order_id":42,"eta":"2026-08-25T13:30:00Z"}}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Countdown.OrderRef() != 42 {
		t.Errorf("order ref = %d, want order_id over id", ev.Countdown.OrderRef())
	}
}

func TestDecodeUnknownTypeKeepsType(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"SHINY_NEW_THING","payload":{}}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if ev.Type != "SHINY_NEW_THING" {
		t.Errorf("type = %q, should survive for logging", ev.Type)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"payload":{"id":1}}`},
		{"payload shape mismatch", `{"type":"IDENTIFY","payload":{"userId":"not-a-number"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode([]byte(tc.raw)); !errors.Is(err, ErrBadEnvelope) {
				t.Errorf("err = %v, want ErrBadEnvelope", err)
			}
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeForceLogout, ForceLogoutPayload{Reason: "unauthorized"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode own output: %v", err)
	}
	if ev.ForceLogout == nil || ev.ForceLogout.Reason != "unauthorized" {
		t.Errorf("event = %+v", ev)
	}
}
