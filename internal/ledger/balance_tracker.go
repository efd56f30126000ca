package ledger

import "fmt"

// BalanceTracker maintains in-memory account balances. Not thread-safe —
// only accessed from the single-threaded engine.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// RevertBatch undoes a previously applied batch by applying each entry in
// reverse. Used when an outbound transfer fails after state was finalized:
// the enclosing operation must leave no partial fund movement behind.
func (bt *BalanceTracker) RevertBatch(batch *Batch) {
	for i := len(batch.Journals) - 1; i >= 0; i-- {
		j := batch.Journals[i]
		bt.balances[j.DebitAccount] -= j.Amount
		bt.balances[j.CreditAccount] += j.Amount
	}
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// SetBalance overwrites an account balance. Snapshot restore only.
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}

// === Reserve Account views ===

// ReserveBalance returns the pooled collateral balance.
func (bt *BalanceTracker) ReserveBalance() int64 {
	return bt.GetBalance(ReservePoolKey())
}

// LifetimePremiums returns total premiums ever collected. The premiums
// boundary account only ever receives credits, so its negated balance is
// the lifetime total.
func (bt *BalanceTracker) LifetimePremiums() int64 {
	return -bt.GetBalance(ExternalKey(SubTypeExternalPremiums))
}

// LifetimePayouts returns total claim payouts ever made. Refunds are
// excluded: cancellation moves through a separate boundary account.
func (bt *BalanceTracker) LifetimePayouts() int64 {
	return bt.GetBalance(ExternalKey(SubTypeExternalPayouts))
}

// === Invariant Checks ===

// ValidateReserveNonNegative checks the pool never goes negative.
func (bt *BalanceTracker) ValidateReserveNonNegative() error {
	balance := bt.ReserveBalance()
	if balance < 0 {
		return fmt.Errorf("reserve pool has negative balance: %d", balance)
	}
	return nil
}

// ValidateSufficientReserve checks the pool can cover a debit.
func (bt *BalanceTracker) ValidateSufficientReserve(required int64) error {
	balance := bt.ReserveBalance()
	if balance < required {
		return fmt.Errorf("insufficient reserve: have=%d, need=%d", balance, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (0 for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
