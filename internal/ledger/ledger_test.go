package ledger_test

import (
	"testing"

	"github.com/Kizaaaa/insurix/internal/ledger"
	"github.com/google/uuid"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_ReservePoolPath(t *testing.T) {
	path := ledger.ReservePoolKey().AccountPath()
	if path != "system:reserve_pool" {
		t.Errorf("got %q, want %q", path, "system:reserve_pool")
	}
}

func TestAccountKey_ExternalPaths(t *testing.T) {
	cases := []struct {
		subType ledger.AccountSubType
		want    string
	}{
		{ledger.SubTypeExternalPremiums, "external:premiums"},
		{ledger.SubTypeExternalPayouts, "external:payouts"},
		{ledger.SubTypeExternalRefunds, "external:refunds"},
		{ledger.SubTypeExternalFunding, "external:funding"},
		{ledger.SubTypeExternalWithdrawals, "external:withdrawals"},
	}

	for _, c := range cases {
		path := ledger.ExternalKey(c.subType).AccountPath()
		if path != c.want {
			t.Errorf("got %q, want %q", path, c.want)
		}
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialReserveZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if bt.ReserveBalance() != 0 {
		t.Errorf("initial reserve should be 0, got %d", bt.ReserveBalance())
	}
}

func mustPremiumBatch(t *testing.T, gen *ledger.JournalGenerator, policyID uint64, amount int64) *ledger.Batch {
	t.Helper()
	batch, err := gen.GeneratePremium("op-premium", policyID, uuid.New(), amount, 0, 1000)
	if err != nil {
		t.Fatalf("GeneratePremium failed: %v", err)
	}
	return batch
}

func TestBalanceTracker_PremiumIncreasesReserve(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	batch := mustPremiumBatch(t, gen, 1, 100_000)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if bt.ReserveBalance() != 100_000 {
		t.Errorf("reserve: got %d, want 100000", bt.ReserveBalance())
	}
	if bt.LifetimePremiums() != 100_000 {
		t.Errorf("lifetime premiums: got %d, want 100000", bt.LifetimePremiums())
	}
}

func TestBalanceTracker_PayoutDecreasesReserve(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	if err := bt.ApplyBatch(mustPremiumBatch(t, gen, 1, 500_000)); err != nil {
		t.Fatal(err)
	}

	payout, err := gen.GeneratePayout("op-payout", 1, uuid.New(), 375_000, 1, 2000)
	if err != nil {
		t.Fatalf("GeneratePayout failed: %v", err)
	}
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatal(err)
	}

	if bt.ReserveBalance() != 125_000 {
		t.Errorf("reserve: got %d, want 125000", bt.ReserveBalance())
	}
	if bt.LifetimePayouts() != 375_000 {
		t.Errorf("lifetime payouts: got %d, want 375000", bt.LifetimePayouts())
	}
}

func TestBalanceTracker_RefundExcludedFromLifetimePayouts(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	if err := bt.ApplyBatch(mustPremiumBatch(t, gen, 1, 100_000)); err != nil {
		t.Fatal(err)
	}

	refund, err := gen.GenerateRefund("op-refund", 1, uuid.New(), 90_000, 1, 2000)
	if err != nil {
		t.Fatalf("GenerateRefund failed: %v", err)
	}
	if err := bt.ApplyBatch(refund); err != nil {
		t.Fatal(err)
	}

	if bt.LifetimePayouts() != 0 {
		t.Errorf("refunds must not count as payouts, got %d", bt.LifetimePayouts())
	}
	if bt.ReserveBalance() != 10_000 {
		t.Errorf("reserve after refund: got %d, want 10000", bt.ReserveBalance())
	}
}

func TestBalanceTracker_RevertBatchRestoresBalances(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	if err := bt.ApplyBatch(mustPremiumBatch(t, gen, 1, 500_000)); err != nil {
		t.Fatal(err)
	}

	payout, err := gen.GeneratePayout("op-payout", 1, uuid.New(), 375_000, 1, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatal(err)
	}

	bt.RevertBatch(payout)

	if bt.ReserveBalance() != 500_000 {
		t.Errorf("reserve after revert: got %d, want 500000", bt.ReserveBalance())
	}
	if bt.LifetimePayouts() != 0 {
		t.Errorf("lifetime payouts after revert: got %d, want 0", bt.LifetimePayouts())
	}
	if bt.ComputeGlobalBalance() != 0 {
		t.Errorf("ledger must stay zero-sum after revert, got %d", bt.ComputeGlobalBalance())
	}
}

func TestBalanceTracker_ZeroSumAcrossAllMovements(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	funding, _ := gen.GenerateFunding("op-fund", uuid.New(), 1_000_000, 0, 1000)
	if err := bt.ApplyBatch(funding); err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(mustPremiumBatch(t, gen, 1, 100_000)); err != nil {
		t.Fatal(err)
	}
	payout, _ := gen.GeneratePayout("op-payout", 1, uuid.New(), 500_000, 2, 3000)
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatal(err)
	}
	withdrawal, _ := gen.GenerateWithdrawal("op-wd", uuid.New(), 200_000, 3, 4000)
	if err := bt.ApplyBatch(withdrawal); err != nil {
		t.Fatal(err)
	}

	if bt.ComputeGlobalBalance() != 0 {
		t.Errorf("global balance must be zero, got %d", bt.ComputeGlobalBalance())
	}
	if bt.ReserveBalance() != 400_000 {
		t.Errorf("reserve: got %d, want 400000", bt.ReserveBalance())
	}
}

// ============================================================================
// Test: JournalGenerator pre-checks
// ============================================================================

func TestGeneratePayout_InsufficientReserveRejected(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	if err := bt.ApplyBatch(mustPremiumBatch(t, gen, 1, 100_000)); err != nil {
		t.Fatal(err)
	}

	_, err := gen.GeneratePayout("op-payout", 1, uuid.New(), 200_000, 1, 2000)
	if err == nil {
		t.Fatal("expected sufficiency pre-check to reject payout > reserve")
	}
}

func TestGenerateWithdrawal_InsufficientReserveRejected(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	_, err := gen.GenerateWithdrawal("op-wd", uuid.New(), 1, 0, 1000)
	if err == nil {
		t.Fatal("expected withdrawal from empty pool to be rejected")
	}
}

func TestGeneratePremium_NonPositiveRejected(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)

	if _, err := gen.GeneratePremium("op", 1, uuid.New(), 0, 0, 1000); err == nil {
		t.Error("zero premium must be rejected")
	}
	if _, err := gen.GeneratePremium("op", 1, uuid.New(), -5, 0, 1000); err == nil {
		t.Error("negative premium must be rejected")
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func TestBatchValidate_EmptyBatchRejected(t *testing.T) {
	b := &ledger.Batch{BatchID: uuid.New()}
	if err := b.Validate(); err == nil {
		t.Error("empty batch must be invalid")
	}
}

func TestBatchValidate_SameDebitCreditRejected(t *testing.T) {
	batchID := uuid.New()
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.ReservePoolKey(),
			CreditAccount: ledger.ReservePoolKey(),
			Amount:        100,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("self-transfer journal must be invalid")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_LifetimeConsistency(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	gen := ledger.NewJournalGenerator(bt)
	v := ledger.NewInvariantValidator(bt)

	funding, _ := gen.GenerateFunding("op-fund", uuid.New(), 1_000_000, 0, 1000)
	if err := bt.ApplyBatch(funding); err != nil {
		t.Fatal(err)
	}
	if err := bt.ApplyBatch(mustPremiumBatch(t, gen, 1, 100_000)); err != nil {
		t.Fatal(err)
	}
	refund, _ := gen.GenerateRefund("op-refund", 1, uuid.New(), 90_000, 1, 2000)
	if err := bt.ApplyBatch(refund); err != nil {
		t.Fatal(err)
	}

	if err := v.ValidateReserveSolvent(); err != nil {
		t.Errorf("reserve solvency: %v", err)
	}
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance: %v", err)
	}
	if err := v.ValidateLifetimeConsistency(); err != nil {
		t.Errorf("lifetime consistency: %v", err)
	}
}

func TestInvariantValidator_DetectsCorruptedBalance(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	// A directly set negative pool (no matching boundary entry) breaks
	// both solvency and the zero-sum check
	bt.SetBalance(ledger.ReservePoolKey(), -1)

	if err := v.ValidateReserveSolvent(); err == nil {
		t.Error("negative reserve must fail solvency")
	}
	if err := v.ValidateGlobalBalance(); err == nil {
		t.Error("unbalanced ledger must fail zero-sum check")
	}
}
