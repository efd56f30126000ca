package core

import "errors"

// Error kinds classify every rejection the engine can produce. Handlers
// wrap these with fmt.Errorf("%w: ...") so callers classify with
// errors.Is while still receiving a specific reason.
var (
	// ErrValidation: malformed input, out-of-range premium, short lead
	// time, mismatched batch lengths, bad tier percentages. No state change.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized: caller lacks the capability the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrState: policy not in the required status, report not yet present,
	// policy id never assigned. Retryable once the precondition can hold.
	ErrState = errors.New("state error")

	// ErrResource: reserve balance insufficient for a payout, refund or
	// withdrawal. Retryable after funding.
	ErrResource = errors.New("insufficient reserve")

	// ErrTransfer: the outbound fund transfer failed; the enclosing
	// operation was rolled back in full.
	ErrTransfer = errors.New("transfer failed")

	// ErrReentrancy: an operation was submitted while an outbound
	// transfer was in flight on this ledger.
	ErrReentrancy = errors.New("reentrant operation rejected")
)
