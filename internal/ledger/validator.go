package ledger

import "fmt"

// InvariantValidator checks reserve-accounting invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies the batch is balanced and well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateReserveSolvent verifies the pool never went negative. Run after
// every applied batch; a failure here means a sufficiency pre-check was
// bypassed and the engine must halt.
func (v *InvariantValidator) ValidateReserveSolvent() error {
	return v.tracker.ValidateReserveNonNegative()
}

// ValidateGlobalBalance verifies the ledger is zero-sum: every unit in the
// pool is mirrored by a boundary account entry.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	total := v.tracker.ComputeGlobalBalance()
	if total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateLifetimeConsistency verifies the derived lifetime totals
// reconcile with the pool: premiums + funding in, payouts + refunds +
// withdrawals out.
func (v *InvariantValidator) ValidateLifetimeConsistency() error {
	in := v.tracker.LifetimePremiums() - v.tracker.GetBalance(ExternalKey(SubTypeExternalFunding))
	out := v.tracker.LifetimePayouts() +
		v.tracker.GetBalance(ExternalKey(SubTypeExternalRefunds)) +
		v.tracker.GetBalance(ExternalKey(SubTypeExternalWithdrawals))

	if in-out != v.tracker.ReserveBalance() {
		return fmt.Errorf("reserve reconciliation failed: in=%d out=%d balance=%d",
			in, out, v.tracker.ReserveBalance())
	}
	return nil
}
