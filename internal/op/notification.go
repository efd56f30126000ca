package op

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType discriminates the notification stream
type NotificationType int32

const (
	NotificationUnknown NotificationType = iota
	NotificationPolicyPurchased
	NotificationFlightReported
	NotificationClaimProcessed
	NotificationPolicyExpired
	NotificationPolicyCancelled
	NotificationOracleAuthorized
	NotificationOracleRevoked
	NotificationReserveFunded
	NotificationReserveWithdrawn
	NotificationParametersUpdated
	NotificationTiersUpdated
	NotificationPaused
	NotificationUnpaused
	NotificationAdminTransferred
)

func (nt NotificationType) String() string {
	switch nt {
	case NotificationPolicyPurchased:
		return "PolicyPurchased"
	case NotificationFlightReported:
		return "FlightReported"
	case NotificationClaimProcessed:
		return "ClaimProcessed"
	case NotificationPolicyExpired:
		return "PolicyExpired"
	case NotificationPolicyCancelled:
		return "PolicyCancelled"
	case NotificationOracleAuthorized:
		return "OracleAuthorized"
	case NotificationOracleRevoked:
		return "OracleRevoked"
	case NotificationReserveFunded:
		return "ReserveFunded"
	case NotificationReserveWithdrawn:
		return "ReserveWithdrawn"
	case NotificationParametersUpdated:
		return "ParametersUpdated"
	case NotificationTiersUpdated:
		return "TiersUpdated"
	case NotificationPaused:
		return "Paused"
	case NotificationUnpaused:
		return "Unpaused"
	case NotificationAdminTransferred:
		return "AdminTransferred"
	default:
		return "Unknown"
	}
}

// Notification wraps every entry in the outbound stream. External indexers
// reconstruct ledger state from this stream without re-querying every
// field; the state-hash chain lets them verify nothing was missed.
type Notification struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Idempotency key of the operation that produced this entry
	OpKey string

	Type NotificationType

	// Policy context (zero for non-policy notifications)
	PolicyID uint64

	// Shared-clock instant at which the operation applied
	Timestamp time.Time

	// Type-specific payload, JSON-encoded at the persistence boundary
	Payload any

	// SHA-256 of ledger state AFTER applying this operation
	StateHash [32]byte

	// Previous notification's state hash (chain integrity)
	PrevHash [32]byte
}

// --- Payloads ---

type PolicyPurchasedPayload struct {
	PolicyID  uint64    `json:"policy_id"`
	Holder    uuid.UUID `json:"holder"`
	FlightID  string    `json:"flight_id"`
	Departure time.Time `json:"departure"`
	Premium   int64     `json:"premium"`
	MaxPayout int64     `json:"max_payout"`
}

type FlightReportedPayload struct {
	FlightID     string `json:"flight_id"`
	DayBucket    int64  `json:"day_bucket"`
	ReportKey    string `json:"report_key"`
	Status       string `json:"status"`
	DelayMinutes int64  `json:"delay_minutes"`
}

type ClaimProcessedPayload struct {
	PolicyID     uint64    `json:"policy_id"`
	Holder       uuid.UUID `json:"holder"`
	DelayHours   int64     `json:"delay_hours"`
	PayoutAmount int64     `json:"payout_amount"`
}

type PolicyExpiredPayload struct {
	PolicyID uint64 `json:"policy_id"`
	Reason   string `json:"reason"`
}

type PolicyCancelledPayload struct {
	PolicyID uint64    `json:"policy_id"`
	Holder   uuid.UUID `json:"holder"`
	Refund   int64     `json:"refund"`
}

type OraclePayload struct {
	Oracle uuid.UUID `json:"oracle"`
}

type ReserveMovedPayload struct {
	Party   uuid.UUID `json:"party"`
	Amount  int64     `json:"amount"`
	Balance int64     `json:"balance"`
}

type ParametersUpdatedPayload struct {
	MinPremium       int64 `json:"min_premium"`
	MaxPremium       int64 `json:"max_premium"`
	PayoutMultiplier int64 `json:"payout_multiplier"`
	MinLeadTimeSecs  int64 `json:"min_lead_time_secs"`
}

type TiersUpdatedPayload struct {
	TierCount int           `json:"tier_count"`
	Tiers     []TierPayload `json:"tiers"`
}

type TierPayload struct {
	MinDelayHours int64 `json:"min_delay_hours"`
	PayoutBps     int64 `json:"payout_bps"`
}

type AdminTransferredPayload struct {
	NewAdmin uuid.UUID `json:"new_admin"`
}
