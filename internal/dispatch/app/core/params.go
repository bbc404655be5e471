package core

// Order statuses. Transitions are pending → accepted → processing →
// delivered, with cancelled reachable from pending and accepted.
const (
	StatusPending    = "pending"
	StatusAccepted   = "accepted"
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Session roles.
const (
	RoleAdmin   = "admin"
	RoleCourier = "courier"
	RoleShop    = "shop"
)

// History record statuses.
const (
	HistoryAccepted  = "accepted"
	HistoryCompleted = "completed"
)

// ClaimOutcome is the result of a claim attempt. AlreadyTaken is an
// expected outcome under contention, not an error.
type ClaimOutcome string

const (
	OutcomeClaimed      ClaimOutcome = "claimed"
	OutcomeAlreadyTaken ClaimOutcome = "already_taken"
)

const (
	// AuditTimeoutSec bounds the fire-and-forget history write.
	AuditTimeoutSec = 5
	// MaxETAMinutes caps how far out a courier may set a completion time.
	MaxETAMinutes = 240
)
