package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypePremium JournalType = iota
	JournalTypePayout
	JournalTypeRefund
	JournalTypeFunding
	JournalTypeWithdrawal
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypePremium:
		return "premium"
	case JournalTypePayout:
		return "payout"
	case JournalTypeRefund:
		return "refund"
	case JournalTypeFunding:
		return "funding"
	case JournalTypeWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries from one operation
	OpRef         string      // Idempotency key of source operation
	Sequence      int64       // Global notification sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Micro-unit amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	PolicyID      uint64      // Policy context (zero for reserve admin moves)
	Party         uuid.UUID   // Counterparty (holder, funder, admin)
	Timestamp     int64       // Shared-clock timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	OpRef     string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each entry is a balanced
// transfer by construction: a single positive amount moves from the credit
// account to the debit account, so debits equal credits per entry.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
