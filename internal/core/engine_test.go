package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Kizaaaa/insurix/internal/core"
	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/state"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// --- Test helpers ---

type transferCall struct {
	party  uuid.UUID
	amount int64
	memo   string
}

// fakeGateway records outbound transfers and can be told to fail.
type fakeGateway struct {
	calls   []transferCall
	failAll bool

	// onTransfer, when set, runs inside Transfer. Used to simulate a
	// gateway calling back into the engine mid-transfer.
	onTransfer func()
}

func (g *fakeGateway) Transfer(ctx context.Context, party uuid.UUID, amount int64, memo string) error {
	if g.onTransfer != nil {
		g.onTransfer()
	}
	if g.failAll {
		return fmt.Errorf("gateway unavailable")
	}
	g.calls = append(g.calls, transferCall{party: party, amount: amount, memo: memo})
	return nil
}

type testEnv struct {
	engine     *core.Engine
	admin      uuid.UUID
	clock      *clockwork.FakeClock
	gateway    *fakeGateway
	persistCh  chan core.Output
	projection chan core.Output
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()

	persistCh := make(chan core.Output, 1024)
	projCh := make(chan core.Output, 1024)
	admin := uuid.New()
	clock := clockwork.NewFakeClockAt(testEpoch)
	gateway := &fakeGateway{}

	engine := core.NewEngine(admin, persistCh, projCh, nil, gateway, clock, nil)

	return &testEnv{
		engine:     engine,
		admin:      admin,
		clock:      clock,
		gateway:    gateway,
		persistCh:  persistCh,
		projection: projCh,
	}
}

func (env *testEnv) mustApply(t *testing.T, oper op.Operation) *core.Result {
	t.Helper()
	result, err := env.engine.Apply(context.Background(), oper)
	if err != nil {
		t.Fatalf("apply %s failed: %v", oper.OpType(), err)
	}
	return result
}

// fundReserve seeds the pool so purchase admission passes.
func (env *testEnv) fundReserve(t *testing.T, amount int64) {
	t.Helper()
	env.mustApply(t, &op.FundReserve{
		RequestID: uuid.New(),
		Funder:    env.admin,
		Amount:    amount,
	})
}

// purchase admits a policy departing 48h out with the given premium.
func (env *testEnv) purchase(t *testing.T, holder uuid.UUID, flightID string, premium int64) *core.Result {
	t.Helper()
	return env.mustApply(t, &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    holder,
		FlightID:  flightID,
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   premium,
	})
}

// report submits a flight report as a freshly authorized oracle.
func (env *testEnv) report(t *testing.T, flightID string, departure time.Time, status state.FlightStatus, delayMinutes int64) {
	t.Helper()

	oracle := uuid.New()
	env.mustApply(t, &op.AuthorizeOracle{
		RequestID: uuid.New(),
		Admin:     env.admin,
		Oracle:    oracle,
	})
	env.mustApply(t, &op.ReportFlightStatus{
		MessageID:    uuid.New().String(),
		Reporter:     oracle,
		FlightID:     flightID,
		DayBucket:    state.DayBucket(departure),
		Status:       status,
		DelayMinutes: delayMinutes,
	})
}

func drainOutputs(ch chan core.Output) []core.Output {
	var outputs []core.Output
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

const (
	premiumTenth = 100_000 // 0.1 units
	poolSeed     = 10_000_000
)

// ============================================================================
// Test: Purchase
// ============================================================================

func TestPurchase_CreatesActivePolicyAndCollectsPremium(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	result := env.purchase(t, holder, "VN123", premiumTenth)

	if result.PolicyID != 1 {
		t.Errorf("expected policy id 1, got %d", result.PolicyID)
	}

	outputs := drainOutputs(env.persistCh)
	// Funding + purchase
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}

	purchased := outputs[1]
	if purchased.Notification.Type != op.NotificationPolicyPurchased {
		t.Errorf("expected PolicyPurchased, got %s", purchased.Notification.Type)
	}

	payload := purchased.Notification.Payload.(op.PolicyPurchasedPayload)
	if payload.MaxPayout != premiumTenth*5 {
		t.Errorf("expected max payout %d (premium * multiplier), got %d", premiumTenth*5, payload.MaxPayout)
	}
	if purchased.Batch == nil || len(purchased.Batch.Journals) != 1 {
		t.Fatalf("expected one premium journal")
	}
	if purchased.Batch.Journals[0].Amount != premiumTenth {
		t.Errorf("expected premium journal of %d, got %d", premiumTenth, purchased.Batch.Journals[0].Amount)
	}
}

func TestPurchase_PremiumBelowMinimumRejected(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)

	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   1, // far below 0.01 units
	})

	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPurchase_ShortLeadTimeRejected(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)

	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(30 * time.Minute),
		Premium:   premiumTenth,
	})

	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPurchase_LeadTimeBoundaryIsExclusive(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)

	// Default lead time is 1h. Departure exactly 1h out must reject:
	// strictly more than the lead time is required.
	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(time.Hour),
		Premium:   premiumTenth,
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error at exact lead-time boundary, got %v", err)
	}

	// One second past the boundary admits.
	env.mustApply(t, &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(time.Hour + time.Second),
		Premium:   premiumTenth,
	})
}

func TestPurchase_ReserveCheckedBeforePremiumCollected(t *testing.T) {
	env := newTestEngine(t)

	// maxPayout = 5 x 100,000 = 500,000. A 450,000 pool must reject even
	// though pool + premium would reach 550,000: the check runs against
	// the pool as it stands.
	env.fundReserve(t, 450_000)

	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   premiumTenth,
	})
	if !errors.Is(err, core.ErrResource) {
		t.Fatalf("expected resource error with reserve below max payout, got %v", err)
	}

	// Topping up to 500,000 admits.
	env.fundReserve(t, 50_000)
	env.purchase(t, uuid.New(), "VN123", premiumTenth)
}

func TestPurchase_MaxPayoutOverflowRejected(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)

	env.mustApply(t, &op.UpdateParameters{
		RequestID:        uuid.New(),
		Admin:            env.admin,
		MinPremium:       10_000,
		MaxPremium:       1_000_000,
		PayoutMultiplier: 1 << 62,
		MinLeadTime:      time.Hour,
	})

	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   premiumTenth,
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error on max payout overflow, got %v", err)
	}
}

func TestPurchase_InsufficientReserveRejected(t *testing.T) {
	env := newTestEngine(t)
	// No funding: empty pool cannot cover maxPayout = 5x premium

	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   premiumTenth,
	})

	if !errors.Is(err, core.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestPurchase_BlockedWhilePaused(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)

	env.mustApply(t, &op.Pause{RequestID: uuid.New(), Admin: env.admin})

	_, err := env.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    uuid.New(),
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   premiumTenth,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("expected state error while paused, got %v", err)
	}

	// Unpause restores admission
	env.mustApply(t, &op.Unpause{RequestID: uuid.New(), Admin: env.admin})
	env.purchase(t, uuid.New(), "VN123", premiumTenth)
}

// ============================================================================
// Test: Flight reports
// ============================================================================

func TestReport_UnauthorizedReporterRejected(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.engine.Apply(context.Background(), &op.ReportFlightStatus{
		MessageID:    uuid.New().String(),
		Reporter:     uuid.New(), // never authorized
		FlightID:     "VN123",
		DayBucket:    state.DayBucket(testEpoch),
		Status:       state.FlightStatusDelayed,
		DelayMinutes: 120,
	})

	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestReport_RevokedOracleRejected(t *testing.T) {
	env := newTestEngine(t)
	oracle := uuid.New()

	env.mustApply(t, &op.AuthorizeOracle{RequestID: uuid.New(), Admin: env.admin, Oracle: oracle})
	env.mustApply(t, &op.RevokeOracle{RequestID: uuid.New(), Admin: env.admin, Oracle: oracle})

	_, err := env.engine.Apply(context.Background(), &op.ReportFlightStatus{
		MessageID:    uuid.New().String(),
		Reporter:     oracle,
		FlightID:     "VN123",
		DayBucket:    state.DayBucket(testEpoch),
		Status:       state.FlightStatusDelayed,
		DelayMinutes: 120,
	})

	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after revoke, got %v", err)
	}
}

func TestBatchReport_MismatchedLengthsRejectedAtomically(t *testing.T) {
	env := newTestEngine(t)
	oracle := uuid.New()
	env.mustApply(t, &op.AuthorizeOracle{RequestID: uuid.New(), Admin: env.admin, Oracle: oracle})

	_, err := env.engine.Apply(context.Background(), &op.BatchReportFlightStatus{
		MessageID:    uuid.New().String(),
		Reporter:     oracle,
		FlightIDs:    []string{"VN1", "VN2"},
		DayBuckets:   []int64{20000, 20000},
		Statuses:     []state.FlightStatus{state.FlightStatusOnTime},
		DelayMinutes: []int64{0, 0},
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	drainOutputs(env.persistCh)

	// A valid batch writes every report and emits one notification each
	env.mustApply(t, &op.BatchReportFlightStatus{
		MessageID:    uuid.New().String(),
		Reporter:     oracle,
		FlightIDs:    []string{"VN1", "VN2", "VN3"},
		DayBuckets:   []int64{20000, 20000, 20001},
		Statuses:     []state.FlightStatus{state.FlightStatusOnTime, state.FlightStatusDelayed, state.FlightStatusCancelled},
		DelayMinutes: []int64{0, 300, 0},
	})

	outputs := drainOutputs(env.persistCh)
	if len(outputs) != 3 {
		t.Fatalf("expected 3 notifications from batch of 3, got %d", len(outputs))
	}
	for i, o := range outputs {
		if o.Notification.Type != op.NotificationFlightReported {
			t.Errorf("output %d: expected FlightReported, got %s", i, o.Notification.Type)
		}
	}
}

func TestReport_LastWriteWins(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	result := env.purchase(t, holder, "VN123", premiumTenth)
	departure := env.clock.Now().Add(48 * time.Hour)

	// First report says on-time, corrected report says a 4h delay
	env.report(t, "VN123", departure, state.FlightStatusOnTime, 0)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)

	claim := env.mustApply(t, &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  result.PolicyID,
	})

	// The corrected report settled the claim: 0.5 * 75% = 0.375
	if claim.PayoutAmount != 375_000 {
		t.Errorf("expected payout from corrected report (375000), got %d", claim.PayoutAmount)
	}
}

// ============================================================================
// Test: Claim settlement scenarios
// ============================================================================

// premium 0.1, multiplier 5 → maxPayout 0.5. Default tiers:
// ≥1h → 25%, ≥4h → 75%, ≥8h → 100%.
func runClaimScenario(t *testing.T, status state.FlightStatus, delayMinutes int64) (*testEnv, *core.Result, error) {
	t.Helper()

	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)
	departure := env.clock.Now().Add(48 * time.Hour)
	env.report(t, "VN123", departure, status, delayMinutes)

	result, err := env.engine.Apply(context.Background(), &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	return env, result, err
}

func TestClaim_FourHourDelayPays75Percent(t *testing.T) {
	env, result, err := runClaimScenario(t, state.FlightStatusDelayed, 240)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if result.PayoutAmount != 375_000 {
		t.Errorf("expected payout 375000 (0.5 * 75%%), got %d", result.PayoutAmount)
	}
	if len(env.gateway.calls) != 1 || env.gateway.calls[0].amount != 375_000 {
		t.Errorf("expected one transfer of 375000, got %+v", env.gateway.calls)
	}
}

func TestClaim_OneHourDelayPays25Percent(t *testing.T) {
	_, result, err := runClaimScenario(t, state.FlightStatusDelayed, 60)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if result.PayoutAmount != 125_000 {
		t.Errorf("expected payout 125000 (0.5 * 25%%), got %d", result.PayoutAmount)
	}
}

func TestClaim_CancelledFlightPaysFullMaxPayout(t *testing.T) {
	// Cancellation forces delayHours=24, which lands in the ≥8h → 100% tier
	_, result, err := runClaimScenario(t, state.FlightStatusCancelled, 0)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if result.PayoutAmount != 500_000 {
		t.Errorf("expected payout 500000 (full max payout), got %d", result.PayoutAmount)
	}
}

func TestClaim_OnTimeFlightExpiresWithNoPayout(t *testing.T) {
	env, result, err := runClaimScenario(t, state.FlightStatusOnTime, 0)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if result.PayoutAmount != 0 {
		t.Errorf("expected zero payout, got %d", result.PayoutAmount)
	}
	if len(env.gateway.calls) != 0 {
		t.Errorf("expected no transfer for expiry, got %+v", env.gateway.calls)
	}

	outputs := drainOutputs(env.persistCh)
	last := outputs[len(outputs)-1]
	if last.Notification.Type != op.NotificationPolicyExpired {
		t.Errorf("expected PolicyExpired, got %s", last.Notification.Type)
	}
	if last.Batch != nil {
		t.Errorf("expiry must move no funds, got batch %+v", last.Batch)
	}
}

func TestClaim_SubHourDelayExpires(t *testing.T) {
	// 45 minutes truncates to 0 delay hours: below every tier
	env, result, err := runClaimScenario(t, state.FlightStatusDelayed, 45)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if result.PayoutAmount != 0 {
		t.Errorf("expected zero payout for sub-hour delay, got %d", result.PayoutAmount)
	}
	if len(env.gateway.calls) != 0 {
		t.Errorf("expected no transfer, got %+v", env.gateway.calls)
	}
}

func TestClaim_NoReportYetIsRetryable(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)

	_, err := env.engine.Apply(context.Background(), &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("expected state error without report, got %v", err)
	}

	// Once a report lands, the same policy settles
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)

	result := env.mustApply(t, &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if result.PayoutAmount != 375_000 {
		t.Errorf("expected payout after retry, got %d", result.PayoutAmount)
	}
}

func TestClaim_StrangerCannotSettle(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)

	purchased := env.purchase(t, uuid.New(), "VN123", premiumTenth)
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)

	_, err := env.engine.Apply(context.Background(), &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: uuid.New(), // neither holder nor admin
		PolicyID:  purchased.PolicyID,
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestClaim_NoDoubleSettlement(t *testing.T) {
	env, result, err := runClaimScenario(t, state.FlightStatusDelayed, 240)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	holderCalls := len(env.gateway.calls)

	// A second claim on the settled policy fails with a state error
	_, err = env.engine.Apply(context.Background(), &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: env.admin,
		PolicyID:  result.PolicyID,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("expected state error on second claim, got %v", err)
	}

	// So does cancellation
	_, err = env.engine.Apply(context.Background(), &op.CancelPolicy{
		RequestID: uuid.New(),
		Initiator: env.admin,
		PolicyID:  result.PolicyID,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("expected state error on cancel after claim, got %v", err)
	}

	if len(env.gateway.calls) != holderCalls {
		t.Errorf("no further transfers expected, got %+v", env.gateway.calls)
	}
}

func TestClaim_TransferFailureRollsBackEverything(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)
	drainOutputs(env.persistCh)

	env.gateway.failAll = true
	_, err := env.engine.Apply(context.Background(), &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if !errors.Is(err, core.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if len(drainOutputs(env.persistCh)) != 0 {
		t.Error("failed claim must emit no notification")
	}

	// Policy is still Active: the same claim succeeds once the gateway recovers
	env.gateway.failAll = false
	result := env.mustApply(t, &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if result.PayoutAmount != 375_000 {
		t.Errorf("expected successful retry payout, got %d", result.PayoutAmount)
	}
}

// ============================================================================
// Test: Cancellation
// ============================================================================

func TestCancel_RefundsNinetyPercentBeforeDeparture(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)

	result := env.mustApply(t, &op.CancelPolicy{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})

	if result.RefundAmount != 90_000 {
		t.Errorf("expected 90%% refund (90000), got %d", result.RefundAmount)
	}
	if len(env.gateway.calls) != 1 || env.gateway.calls[0].amount != 90_000 {
		t.Errorf("expected one refund transfer of 90000, got %+v", env.gateway.calls)
	}
	if env.gateway.calls[0].party != holder {
		t.Errorf("refund must go to the holder")
	}
}

func TestCancel_AfterDepartureRejected(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)

	// Advance past departure (48h out at purchase)
	env.clock.Advance(49 * time.Hour)

	_, err := env.engine.Apply(context.Background(), &op.CancelPolicy{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("expected state error after departure, got %v", err)
	}
}

func TestCancel_AtExactDepartureInstantRejected(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)

	// Strictly-before check: the departure instant itself is too late
	env.clock.Advance(48 * time.Hour)

	_, err := env.engine.Apply(context.Background(), &op.CancelPolicy{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("expected state error at departure instant, got %v", err)
	}
}

// ============================================================================
// Test: Claim status preview
// ============================================================================

func TestCheckClaimStatus_PreviewsWithoutSettling(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)
	drainOutputs(env.persistCh)

	// Anyone may preview
	result := env.mustApply(t, &op.CheckClaimStatus{
		RequestID: uuid.New(),
		Initiator: uuid.New(),
		PolicyID:  purchased.PolicyID,
	})

	preview := result.Preview
	if preview == nil {
		t.Fatal("expected a preview")
	}
	if preview.PolicyStatus != "Active" {
		t.Errorf("preview must not settle: policy is %s", preview.PolicyStatus)
	}
	if !preview.Reported || preview.DelayHours != 4 || preview.PayoutAmount != 375_000 {
		t.Errorf("unexpected preview: %+v", preview)
	}

	if len(env.gateway.calls) != 0 {
		t.Errorf("preview must not transfer, got %+v", env.gateway.calls)
	}
	if len(drainOutputs(env.persistCh)) != 0 {
		t.Error("preview must emit no notification")
	}
}

// ============================================================================
// Test: Idempotency
// ============================================================================

func TestDuplicateOperationSkipped(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchase := &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    holder,
		FlightID:  "VN123",
		Departure: env.clock.Now().Add(48 * time.Hour),
		Premium:   premiumTenth,
	}

	first := env.mustApply(t, purchase)
	if first.Duplicate {
		t.Fatal("first apply must not be a duplicate")
	}

	second := env.mustApply(t, purchase)
	if !second.Duplicate {
		t.Fatal("redelivered operation must be recognized as duplicate")
	}

	outputs := drainOutputs(env.persistCh)
	// Funding + exactly one purchase
	if len(outputs) != 2 {
		t.Fatalf("duplicate must not re-apply: got %d outputs", len(outputs))
	}
}

// ============================================================================
// Test: Admin operations
// ============================================================================

func TestNonAdminCannotRunAdminOperations(t *testing.T) {
	env := newTestEngine(t)
	stranger := uuid.New()

	adminOps := []op.Operation{
		&op.AuthorizeOracle{RequestID: uuid.New(), Admin: stranger, Oracle: uuid.New()},
		&op.FundReserve{RequestID: uuid.New(), Funder: stranger, Amount: 1000},
		&op.WithdrawReserve{RequestID: uuid.New(), Admin: stranger, Amount: 1000},
		&op.Pause{RequestID: uuid.New(), Admin: stranger},
		&op.TransferAdmin{RequestID: uuid.New(), Admin: stranger, NewAdmin: uuid.New()},
	}

	for _, o := range adminOps {
		_, err := env.engine.Apply(context.Background(), o)
		if !errors.Is(err, core.ErrUnauthorized) {
			t.Errorf("%s: expected unauthorized, got %v", o.OpType(), err)
		}
	}
}

func TestDirectDepositAcceptedFromAnyParty(t *testing.T) {
	env := newTestEngine(t)

	env.mustApply(t, &op.FundReserve{
		RequestID:      uuid.New(),
		Funder:         uuid.New(),
		Amount:         premiumTenth,
		AllowAnyFunder: true,
	})

	outputs := drainOutputs(env.persistCh)
	if len(outputs) != 1 || outputs[0].Notification.Type != op.NotificationReserveFunded {
		t.Fatalf("expected ReserveFunded, got %+v", outputs)
	}
}

func TestWithdraw_CannotOverdrawReserve(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, 1000)

	_, err := env.engine.Apply(context.Background(), &op.WithdrawReserve{
		RequestID: uuid.New(),
		Admin:     env.admin,
		Amount:    2000,
	})
	if !errors.Is(err, core.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestTransferAdmin_OldAdminLosesCapability(t *testing.T) {
	env := newTestEngine(t)
	newAdmin := uuid.New()

	env.mustApply(t, &op.TransferAdmin{
		RequestID: uuid.New(),
		Admin:     env.admin,
		NewAdmin:  newAdmin,
	})

	_, err := env.engine.Apply(context.Background(), &op.Pause{
		RequestID: uuid.New(),
		Admin:     env.admin,
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("old admin must lose capability, got %v", err)
	}

	env.mustApply(t, &op.Pause{RequestID: uuid.New(), Admin: newAdmin})
}

func TestUpdateParameters_AppliesToNewPoliciesOnly(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	before := env.purchase(t, holder, "VN123", premiumTenth)

	env.mustApply(t, &op.UpdateParameters{
		RequestID:        uuid.New(),
		Admin:            env.admin,
		MinPremium:       10_000,
		MaxPremium:       2_000_000,
		PayoutMultiplier: 10,
		MinLeadTime:      time.Hour,
	})

	after := env.purchase(t, holder, "VN456", premiumTenth)
	drainOutputs(env.projection)

	// Check via preview after a cancelled report pays full max payout
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusCancelled, 0)
	env.report(t, "VN456", departure, state.FlightStatusCancelled, 0)

	oldClaim := env.mustApply(t, &op.ProcessClaim{RequestID: uuid.New(), Initiator: holder, PolicyID: before.PolicyID})
	newClaim := env.mustApply(t, &op.ProcessClaim{RequestID: uuid.New(), Initiator: holder, PolicyID: after.PolicyID})

	if oldClaim.PayoutAmount != premiumTenth*5 {
		t.Errorf("existing policy must keep its multiplier: got %d", oldClaim.PayoutAmount)
	}
	if newClaim.PayoutAmount != premiumTenth*10 {
		t.Errorf("new policy must use the updated multiplier: got %d", newClaim.PayoutAmount)
	}
}

func TestUpdatePayoutTiers_RejectsInvalidTableAtomically(t *testing.T) {
	env := newTestEngine(t)

	_, err := env.engine.Apply(context.Background(), &op.UpdatePayoutTiers{
		RequestID: uuid.New(),
		Admin:     env.admin,
		Tiers: []state.PayoutTier{
			{MinDelayHours: 1, PayoutBps: 12_000}, // > 100%
		},
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Previous table still in force: a 4h delay pays the default 75%
	env.fundReserve(t, poolSeed)
	holder := uuid.New()
	purchased := env.purchase(t, holder, "VN123", premiumTenth)
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)

	result := env.mustApply(t, &op.ProcessClaim{RequestID: uuid.New(), Initiator: holder, PolicyID: purchased.PolicyID})
	if result.PayoutAmount != 375_000 {
		t.Errorf("expected default tier payout 375000, got %d", result.PayoutAmount)
	}
}

// ============================================================================
// Test: Reentrancy
// ============================================================================

func TestReentrantSubmissionDuringTransferRejected(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)
	departure := testEpoch.Add(48 * time.Hour)
	env.report(t, "VN123", departure, state.FlightStatusDelayed, 240)

	var reentrantErr error
	env.gateway.onTransfer = func() {
		// A gateway calling back into the ledger mid-transfer must be
		// rejected, not deadlock the engine.
		_, reentrantErr = env.engine.Execute(context.Background(), &op.FundReserve{
			RequestID:      uuid.New(),
			Funder:         uuid.New(),
			Amount:         1,
			AllowAnyFunder: true,
		})
	}

	result := env.mustApply(t, &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})

	if !errors.Is(reentrantErr, core.ErrReentrancy) {
		t.Fatalf("expected reentrancy rejection, got %v", reentrantErr)
	}
	if result.PayoutAmount != 375_000 {
		t.Errorf("outer claim must still settle, got %d", result.PayoutAmount)
	}
}

// ============================================================================
// Test: Notification stream
// ============================================================================

func TestNotificationSequenceAndHashChain(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()

	env.purchase(t, holder, "VN123", premiumTenth)
	env.purchase(t, holder, "VN456", premiumTenth)

	outputs := drainOutputs(env.persistCh)
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}

	for i, o := range outputs {
		if o.Notification.Sequence != int64(i) {
			t.Errorf("output %d: expected sequence %d, got %d", i, i, o.Notification.Sequence)
		}
		if i > 0 && o.Notification.PrevHash != outputs[i-1].Notification.StateHash {
			t.Errorf("output %d: hash chain broken", i)
		}
	}
}

// ============================================================================
// Test: Snapshot round trip
// ============================================================================

func TestSnapshotRoundTrip(t *testing.T) {
	env := newTestEngine(t)
	env.fundReserve(t, poolSeed)
	holder := uuid.New()
	oracle := uuid.New()

	purchased := env.purchase(t, holder, "VN123", premiumTenth)
	env.mustApply(t, &op.AuthorizeOracle{RequestID: uuid.New(), Admin: env.admin, Oracle: oracle})
	env.mustApply(t, &op.Pause{RequestID: uuid.New(), Admin: env.admin})

	snap := env.engine.CreateSnapshotState()

	// Rebuild a fresh engine from the snapshot
	restored := newTestEngine(t)
	restored.engine.RestoreFromSnapshot(snap)

	if restored.engine.GetSequence() != env.engine.GetSequence() {
		t.Errorf("sequence mismatch: %d vs %d", restored.engine.GetSequence(), env.engine.GetSequence())
	}
	if restored.engine.GetStateHash() != env.engine.GetStateHash() {
		t.Error("state hash chain tip mismatch after restore")
	}

	// The restored oracle can report and the restored policy settles
	departure := testEpoch.Add(48 * time.Hour)
	restored.mustApply(t, &op.ReportFlightStatus{
		MessageID:    uuid.New().String(),
		Reporter:     oracle,
		FlightID:     "VN123",
		DayBucket:    state.DayBucket(departure),
		Status:       state.FlightStatusDelayed,
		DelayMinutes: 240,
	})

	result := restored.mustApply(t, &op.ProcessClaim{
		RequestID: uuid.New(),
		Initiator: holder,
		PolicyID:  purchased.PolicyID,
	})
	if result.PayoutAmount != 375_000 {
		t.Errorf("restored policy must settle normally, got %d", result.PayoutAmount)
	}

	// Pause flag survived
	_, err := restored.engine.Apply(context.Background(), &op.PurchasePolicy{
		RequestID: uuid.New(),
		Holder:    holder,
		FlightID:  "VN789",
		Departure: testEpoch.Add(48 * time.Hour),
		Premium:   premiumTenth,
	})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("restored engine must still be paused, got %v", err)
	}
}
