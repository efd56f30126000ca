package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PolicyStatus is the lifecycle state of a policy
type PolicyStatus int32

const (
	PolicyStatusActive PolicyStatus = iota
	PolicyStatusExpired
	PolicyStatusClaimed
	PolicyStatusCancelled
)

// Policy is a purchased coverage record. Owned exclusively by the
// PolicyLedger; mutated only by purchase, claim processing and
// cancellation; never deleted, only transitioned to a terminal status.
type Policy struct {
	ID          uint64
	Holder      uuid.UUID
	FlightID    string
	Departure   time.Time
	PurchasedAt time.Time

	// PremiumPaid and MaxPayout are micro-units. MaxPayout is fixed at
	// purchase time: premium * the multiplier in force at purchase,
	// regardless of later parameter changes.
	PremiumPaid int64
	MaxPayout   int64

	Status PolicyStatus

	// Set when the policy settles
	DelayHours   int64
	PayoutAmount int64
	Version      int64
}

// IsTerminal reports whether the status admits no further transition.
func (s PolicyStatus) IsTerminal() bool {
	return s != PolicyStatusActive
}

// CanTransitionTo validates a status transition. Active is the only
// non-terminal state; every terminal state is absorbing.
func (s PolicyStatus) CanTransitionTo(next PolicyStatus) bool {
	if s != PolicyStatusActive {
		return false
	}
	switch next {
	case PolicyStatusExpired, PolicyStatusClaimed, PolicyStatusCancelled:
		return true
	default:
		return false
	}
}

func (s PolicyStatus) String() string {
	switch s {
	case PolicyStatusActive:
		return "Active"
	case PolicyStatusExpired:
		return "Expired"
	case PolicyStatusClaimed:
		return "Claimed"
	case PolicyStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ParsePolicyStatus maps a stored status string back to its enum value.
func ParsePolicyStatus(s string) (PolicyStatus, error) {
	switch s {
	case "Active":
		return PolicyStatusActive, nil
	case "Expired":
		return PolicyStatusExpired, nil
	case "Claimed":
		return PolicyStatusClaimed, nil
	case "Cancelled":
		return PolicyStatusCancelled, nil
	default:
		return PolicyStatusActive, fmt.Errorf("unknown policy status %q", s)
	}
}

// DepartureBucket returns the whole-days-since-epoch bucket the policy's
// report is keyed on.
func (p *Policy) DepartureBucket() int64 {
	return DayBucket(p.Departure)
}
