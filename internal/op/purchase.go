package op

import (
	"time"

	"github.com/google/uuid"
)

// PurchasePolicy admits a new policy. The premium arrives as attached
// value; the engine validates bounds, lead time and reserve sufficiency.
type PurchasePolicy struct {
	RequestID uuid.UUID
	Holder    uuid.UUID
	FlightID  string
	Departure time.Time
	Premium   int64 // micro-units
}

func (p *PurchasePolicy) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *PurchasePolicy) OpType() Type {
	return TypePurchasePolicy
}

func (p *PurchasePolicy) Caller() uuid.UUID {
	return p.Holder
}
