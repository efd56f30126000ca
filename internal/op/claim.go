package op

import "github.com/google/uuid"

// ProcessClaim settles an Active policy against the stored flight report.
// Callable by the policyholder or the administrator.
type ProcessClaim struct {
	RequestID uuid.UUID
	Initiator uuid.UUID
	PolicyID  uint64
}

func (c *ProcessClaim) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *ProcessClaim) OpType() Type {
	return TypeProcessClaim
}

func (c *ProcessClaim) Caller() uuid.UUID {
	return c.Initiator
}

// CheckClaimStatus previews the claim decision for a policy without
// mutating anything. Callable by anyone.
type CheckClaimStatus struct {
	RequestID uuid.UUID
	Initiator uuid.UUID
	PolicyID  uint64
}

func (c *CheckClaimStatus) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CheckClaimStatus) OpType() Type {
	return TypeCheckClaimStatus
}

func (c *CheckClaimStatus) Caller() uuid.UUID {
	return c.Initiator
}

// CancelPolicy cancels an Active policy strictly before departure and
// refunds 90% of the premium. Callable by holder or admin.
type CancelPolicy struct {
	RequestID uuid.UUID
	Initiator uuid.UUID
	PolicyID  uint64
}

func (c *CancelPolicy) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *CancelPolicy) OpType() Type {
	return TypeCancelPolicy
}

func (c *CancelPolicy) Caller() uuid.UUID {
	return c.Initiator
}
