package op

import (
	"time"

	"github.com/Kizaaaa/insurix/internal/state"
	"github.com/google/uuid"
)

// AuthorizeOracle adds an identity to the authorized-reporter set.
type AuthorizeOracle struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
	Oracle    uuid.UUID
}

func (a *AuthorizeOracle) IdempotencyKey() string { return a.RequestID.String() }
func (a *AuthorizeOracle) OpType() Type           { return TypeAuthorizeOracle }
func (a *AuthorizeOracle) Caller() uuid.UUID      { return a.Admin }

// RevokeOracle removes an identity from the authorized-reporter set.
type RevokeOracle struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
	Oracle    uuid.UUID
}

func (r *RevokeOracle) IdempotencyKey() string { return r.RequestID.String() }
func (r *RevokeOracle) OpType() Type           { return TypeRevokeOracle }
func (r *RevokeOracle) Caller() uuid.UUID      { return r.Admin }

// FundReserve credits the reserve pool. Admin-only when initiated through
// the API; direct deposits from the settlement boundary arrive through the
// same operation with the depositor as caller and AllowAnyFunder set.
type FundReserve struct {
	RequestID uuid.UUID
	Funder    uuid.UUID
	Amount    int64

	// AllowAnyFunder marks an untagged direct deposit, which is accepted
	// from any party as a reserve funding event.
	AllowAnyFunder bool
}

func (f *FundReserve) IdempotencyKey() string { return f.RequestID.String() }
func (f *FundReserve) OpType() Type           { return TypeFundReserve }
func (f *FundReserve) Caller() uuid.UUID      { return f.Funder }

// WithdrawReserve debits the reserve pool and transfers to the admin.
// No coverage check against outstanding liability — operator responsibility.
type WithdrawReserve struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
	Amount    int64
}

func (w *WithdrawReserve) IdempotencyKey() string { return w.RequestID.String() }
func (w *WithdrawReserve) OpType() Type           { return TypeWithdrawReserve }
func (w *WithdrawReserve) Caller() uuid.UUID      { return w.Admin }

// UpdateParameters replaces the admission parameters.
type UpdateParameters struct {
	RequestID        uuid.UUID
	Admin            uuid.UUID
	MinPremium       int64
	MaxPremium       int64
	PayoutMultiplier int64
	MinLeadTime      time.Duration
}

func (u *UpdateParameters) IdempotencyKey() string { return u.RequestID.String() }
func (u *UpdateParameters) OpType() Type           { return TypeUpdateParameters }
func (u *UpdateParameters) Caller() uuid.UUID      { return u.Admin }

// UpdatePayoutTiers replaces the whole tier table atomically.
type UpdatePayoutTiers struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
	Tiers     []state.PayoutTier
}

func (u *UpdatePayoutTiers) IdempotencyKey() string { return u.RequestID.String() }
func (u *UpdatePayoutTiers) OpType() Type           { return TypeUpdatePayoutTiers }
func (u *UpdatePayoutTiers) Caller() uuid.UUID      { return u.Admin }

// Pause gates new-policy admission. Nothing else is gated.
type Pause struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
}

func (p *Pause) IdempotencyKey() string { return p.RequestID.String() }
func (p *Pause) OpType() Type           { return TypePause }
func (p *Pause) Caller() uuid.UUID      { return p.Admin }

// Unpause lifts the purchase gate.
type Unpause struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
}

func (u *Unpause) IdempotencyKey() string { return u.RequestID.String() }
func (u *Unpause) OpType() Type           { return TypeUnpause }
func (u *Unpause) Caller() uuid.UUID      { return u.Admin }

// TransferAdmin hands the administrator role to a new identity.
type TransferAdmin struct {
	RequestID uuid.UUID
	Admin     uuid.UUID
	NewAdmin  uuid.UUID
}

func (t *TransferAdmin) IdempotencyKey() string { return t.RequestID.String() }
func (t *TransferAdmin) OpType() Type           { return TypeTransferAdmin }
func (t *TransferAdmin) Caller() uuid.UUID      { return t.Admin }
