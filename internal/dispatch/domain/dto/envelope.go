package dto

import (
	"encoding/json"
	"fmt"
)

// Message types, both directions of the push channel.
const (
	TypeIdentify  = "IDENTIFY"
	TypeSubscribe = "SUBSCRIBE"

	TypeIdentified        = "IDENTIFIED"
	TypeForceLogout       = "FORCE_LOGOUT"
	TypeNewOrderAvailable = "NEW_ORDER_AVAILABLE"
	TypeOrderUpdated      = "ORDER_UPDATED"
	TypeCountdownStarted  = "COUNTDOWN_STARTED"
	TypeCountdownUpdate   = "COUNTDOWN_UPDATE"
	TypeNotification      = "NOTIFICATION"
)

// Envelope is the canonical wire shape. Emission always nests the payload;
// receipt also tolerates the legacy flattened shape (payload fields merged
// at the top level), see Decode.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload into the canonical nested shape.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
