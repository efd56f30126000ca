package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches for every fund
// movement the engine performs. Debits that could drain the pool carry an
// explicit sufficiency pre-check against the current reserve balance.
type JournalGenerator struct {
	tracker *BalanceTracker
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{tracker: tracker}
}

func (jg *JournalGenerator) newBatch(opRef string, sequence, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		OpRef:     opRef,
		Sequence:  sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}
}

func (jg *JournalGenerator) appendJournal(
	b *Batch,
	debit, credit AccountKey,
	amount int64,
	jt JournalType,
	policyID uint64,
	party uuid.UUID,
) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		OpRef:         b.OpRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount,
		JournalType:   jt,
		PolicyID:      policyID,
		Party:         party,
		Timestamp:     b.Timestamp,
	})
}

// GeneratePremium credits the pool with an incoming premium.
// Moves funds: external:premiums → system:reserve_pool
func (jg *JournalGenerator) GeneratePremium(
	opRef string,
	policyID uint64,
	holder uuid.UUID,
	premium int64,
	sequence, timestamp int64,
) (*Batch, error) {
	if premium <= 0 {
		return nil, fmt.Errorf("premium must be positive, got %d", premium)
	}

	batch := jg.newBatch(opRef, sequence, timestamp)
	jg.appendJournal(batch,
		ReservePoolKey(), ExternalKey(SubTypeExternalPremiums),
		premium, JournalTypePremium, policyID, holder)
	return batch, nil
}

// GeneratePayout debits the pool for a settled claim.
// Pre-check: the pool must cover the payout.
// Moves funds: system:reserve_pool → external:payouts
func (jg *JournalGenerator) GeneratePayout(
	opRef string,
	policyID uint64,
	holder uuid.UUID,
	payout int64,
	sequence, timestamp int64,
) (*Batch, error) {
	if payout <= 0 {
		return nil, fmt.Errorf("payout must be positive, got %d", payout)
	}
	if err := jg.tracker.ValidateSufficientReserve(payout); err != nil {
		return nil, fmt.Errorf("payout pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, sequence, timestamp)
	jg.appendJournal(batch,
		ExternalKey(SubTypeExternalPayouts), ReservePoolKey(),
		payout, JournalTypePayout, policyID, holder)
	return batch, nil
}

// GenerateRefund debits the pool for a cancellation refund. The retained
// fee never moves, so the batch carries the refund amount only.
// Moves funds: system:reserve_pool → external:refunds
func (jg *JournalGenerator) GenerateRefund(
	opRef string,
	policyID uint64,
	holder uuid.UUID,
	refund int64,
	sequence, timestamp int64,
) (*Batch, error) {
	if refund <= 0 {
		return nil, fmt.Errorf("refund must be positive, got %d", refund)
	}
	if err := jg.tracker.ValidateSufficientReserve(refund); err != nil {
		return nil, fmt.Errorf("refund pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, sequence, timestamp)
	jg.appendJournal(batch,
		ExternalKey(SubTypeExternalRefunds), ReservePoolKey(),
		refund, JournalTypeRefund, policyID, holder)
	return batch, nil
}

// GenerateFunding credits the pool with an explicit or direct deposit.
// Moves funds: external:funding → system:reserve_pool
func (jg *JournalGenerator) GenerateFunding(
	opRef string,
	funder uuid.UUID,
	amount int64,
	sequence, timestamp int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("funding amount must be positive, got %d", amount)
	}

	batch := jg.newBatch(opRef, sequence, timestamp)
	jg.appendJournal(batch,
		ReservePoolKey(), ExternalKey(SubTypeExternalFunding),
		amount, JournalTypeFunding, 0, funder)
	return batch, nil
}

// GenerateWithdrawal debits the pool for an admin withdrawal.
// Pre-check: the pool must cover the amount. There is no coverage check
// against outstanding policy liability.
// Moves funds: system:reserve_pool → external:withdrawals
func (jg *JournalGenerator) GenerateWithdrawal(
	opRef string,
	admin uuid.UUID,
	amount int64,
	sequence, timestamp int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}
	if err := jg.tracker.ValidateSufficientReserve(amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batch := jg.newBatch(opRef, sequence, timestamp)
	jg.appendJournal(batch,
		ExternalKey(SubTypeExternalWithdrawals), ReservePoolKey(),
		amount, JournalTypeWithdrawal, 0, admin)
	return batch, nil
}
