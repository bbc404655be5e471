package dto

// Target addresses one delivery of a broadcast: a whole role when UserID is
// zero, or a single user within the role otherwise.
type Target struct {
	Role   string `json:"role"`
	UserID int64  `json:"user_id,omitempty"`
}

// Broadcast is the unit published to the fanout exchange. Every hub
// instance consumes it and fans the event out to its matching local
// sessions.
type Broadcast struct {
	Targets []Target `json:"targets"`
	Event   Envelope `json:"event"`
}
