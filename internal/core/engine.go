package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Kizaaaa/insurix/internal/claims"
	"github.com/Kizaaaa/insurix/internal/ledger"
	"github.com/Kizaaaa/insurix/internal/money"
	"github.com/Kizaaaa/insurix/internal/observability"
	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/state"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// FundGateway moves value across the settlement boundary. Transfer is the
// only external interaction the engine performs; a returned error means no
// value moved and the enclosing operation must roll back.
type FundGateway interface {
	Transfer(ctx context.Context, party uuid.UUID, amount int64, memo string) error
}

// Output is what the engine emits per notification: the notification
// itself plus the journal batch that produced it (nil when the operation
// moved no funds, or for the second and later notifications of one op).
type Output struct {
	Notification *op.Notification
	Batch        *ledger.Batch
}

// Result is the synchronous answer to a submitted operation.
type Result struct {
	Sequence     int64
	PolicyID     uint64
	PayoutAmount int64
	RefundAmount int64
	Duplicate    bool
	Preview      *ClaimPreview
}

// ClaimPreview is the read-only answer of a claim status check.
type ClaimPreview struct {
	PolicyID     uint64
	PolicyStatus string
	Reported     bool
	FlightStatus string
	DelayHours   int64
	PayoutBps    int64
	PayoutAmount int64
}

type request struct {
	ctx  context.Context
	oper op.Operation
	resp chan response
}

type response struct {
	result *Result
	err    error
}

// Engine is the single-threaded operation processor. All state mutation
// happens on the Run goroutine; Execute marshals callers into it. The
// transferGuard converts any re-entrant submission during an outbound
// transfer into a clean rejection instead of a deadlock.
type Engine struct {
	sequence    int64
	clock       clockwork.Clock
	gateway     FundGateway
	hasher      *StateHasher
	tracker     *ledger.BalanceTracker
	journalGen  *ledger.JournalGenerator
	validator   *ledger.InvariantValidator
	policies    *state.PolicyLedger
	reports     *state.ReportStore
	tiers       *state.TierTable
	params      *state.ParamsManager
	roles       *state.RoleRegistry
	idempotency *IdempotencyChecker
	metrics     *observability.Metrics

	persistChan    chan<- Output
	projectionChan chan<- Output

	reqChan       chan request
	transferGuard atomic.Bool
}

func NewEngine(
	admin uuid.UUID,
	persistChan, projectionChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	gateway FundGateway,
	clock clockwork.Clock,
	metrics *observability.Metrics,
) *Engine {
	tracker := ledger.NewBalanceTracker()

	return &Engine{
		clock:          clock,
		gateway:        gateway,
		hasher:         NewStateHasher(),
		tracker:        tracker,
		journalGen:     ledger.NewJournalGenerator(tracker),
		validator:      ledger.NewInvariantValidator(tracker),
		policies:       state.NewPolicyLedger(),
		reports:        state.NewReportStore(),
		tiers:          state.NewTierTable(),
		params:         state.NewParamsManager(),
		roles:          state.NewRoleRegistry(admin),
		idempotency:    NewIdempotencyChecker(1_000_000, dbChecker),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
		reqChan:        make(chan request, 1024),
	}
}

// Execute submits an operation and waits for the serial loop to answer.
// Safe for concurrent use. Rejected immediately with ErrReentrancy if an
// outbound transfer is in flight, because the submitter may be the fund
// gateway calling back into the ledger.
func (e *Engine) Execute(ctx context.Context, oper op.Operation) (*Result, error) {
	if e.transferGuard.Load() {
		return nil, fmt.Errorf("%w: %s submitted during outbound transfer", ErrReentrancy, oper.OpType())
	}

	req := request{ctx: ctx, oper: oper, resp: make(chan response, 1)}

	select {
	case e.reqChan <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-req.resp:
		return resp.result, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drains the request channel until ctx is cancelled. Exactly one Run
// goroutine may exist per engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.reqChan:
			result, err := e.Apply(req.ctx, req.oper)
			req.resp <- response{result: result, err: err}
		}
	}
}

// Apply is the main processing pipeline. Exported for tests and for
// single-threaded embedding; production traffic goes through Execute.
func (e *Engine) Apply(ctx context.Context, oper op.Operation) (*Result, error) {
	start := time.Now()
	opType := oper.OpType().String()

	// Read-only preview: no dedup, no sequence, no notification
	if check, ok := oper.(*op.CheckClaimStatus); ok {
		return e.handleCheckClaimStatus(check)
	}

	if e.idempotency.IsDuplicate(opType, oper.IdempotencyKey()) {
		if e.metrics != nil {
			e.metrics.DuplicateOps.WithLabelValues(opType).Inc()
		}
		return &Result{Duplicate: true}, nil
	}

	if err := e.authorize(oper); err != nil {
		e.countRejection(opType, err)
		return nil, err
	}

	applied, err := e.dispatch(ctx, oper)
	if err != nil {
		e.countRejection(opType, err)
		return nil, err
	}

	// Assign sequences, chain hashes, emit
	for i, n := range applied.notices {
		prevHash := e.hasher.GetPrevHash()
		digest := e.computeStateDigest(applied.batch)
		stateHash := e.hasher.ComputeHash(e.sequence, digest)

		notification := &op.Notification{
			Sequence:  e.sequence,
			OpKey:     oper.IdempotencyKey(),
			Type:      n.typ,
			PolicyID:  n.policyID,
			Timestamp: e.clock.Now(),
			Payload:   n.payload,
			StateHash: stateHash,
			PrevHash:  prevHash,
		}

		output := Output{Notification: notification}
		if i == 0 {
			output.Batch = applied.batch
		}

		// Persistence is a blocking send. The engine stalls until the
		// persistence worker drains; no notification is ever lost.
		e.persistChan <- output

		// Projections tolerate drops and catch up from the log.
		select {
		case e.projectionChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}

		e.sequence++
	}

	if err := e.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated after %s: %v", opType, err))
	}

	e.idempotency.MarkApplied(opType, oper.IdempotencyKey())

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(opType).Inc()
		e.metrics.OpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
		e.metrics.ReserveBalance.Set(float64(e.tracker.ReserveBalance()))
		e.metrics.OutstandingExposure.Set(float64(e.policies.OutstandingExposure()))
	}

	applied.result.Sequence = e.sequence - 1
	return &applied.result, nil
}

// countRejection classifies a rejection for metrics.
func (e *Engine) countRejection(opType string, err error) {
	if e.metrics == nil {
		return
	}

	reason := "internal"
	switch {
	case errors.Is(err, ErrValidation):
		reason = "validation"
	case errors.Is(err, ErrUnauthorized):
		reason = "unauthorized"
	case errors.Is(err, ErrState):
		reason = "state"
	case errors.Is(err, ErrResource):
		reason = "resource"
	case errors.Is(err, ErrTransfer):
		reason = "transfer"
	case errors.Is(err, ErrReentrancy):
		reason = "reentrancy"
	}
	e.metrics.OpsRejected.WithLabelValues(opType, reason).Inc()
}

// notice is one pending notification produced by a handler.
type notice struct {
	typ      op.NotificationType
	policyID uint64
	payload  any
}

// appliedOp is a handler's full answer: state is already mutated and the
// batch (if any) already applied to balances.
type appliedOp struct {
	notices []notice
	batch   *ledger.Batch
	result  Result
}

// authorize is the capability gate at dispatch entry. Handlers assume the
// caller holds the capability their operation requires.
func (e *Engine) authorize(oper op.Operation) error {
	switch o := oper.(type) {
	case *op.PurchasePolicy:
		// Anyone may purchase
		return nil

	case *op.ReportFlightStatus:
		if !e.roles.IsOracle(o.Reporter) && !e.roles.IsAdmin(o.Reporter) {
			return fmt.Errorf("%w: %s is not an authorized reporter", ErrUnauthorized, o.Reporter)
		}
		return nil

	case *op.BatchReportFlightStatus:
		if !e.roles.IsOracle(o.Reporter) && !e.roles.IsAdmin(o.Reporter) {
			return fmt.Errorf("%w: %s is not an authorized reporter", ErrUnauthorized, o.Reporter)
		}
		return nil

	case *op.ProcessClaim, *op.CancelPolicy:
		// Holder-or-admin, checked against the policy in the handler
		return nil

	case *op.FundReserve:
		if o.AllowAnyFunder {
			return nil
		}
		if !e.roles.IsAdmin(o.Funder) {
			return fmt.Errorf("%w: only the admin may fund the reserve", ErrUnauthorized)
		}
		return nil

	default:
		// Everything else is admin-only
		if !e.roles.IsAdmin(oper.Caller()) {
			return fmt.Errorf("%w: %s requires admin", ErrUnauthorized, oper.OpType())
		}
		return nil
	}
}

func (e *Engine) dispatch(ctx context.Context, oper op.Operation) (*appliedOp, error) {
	switch o := oper.(type) {
	case *op.PurchasePolicy:
		return e.handlePurchasePolicy(o)
	case *op.ReportFlightStatus:
		return e.handleReportFlightStatus(o)
	case *op.BatchReportFlightStatus:
		return e.handleBatchReportFlightStatus(o)
	case *op.ProcessClaim:
		return e.handleProcessClaim(ctx, o)
	case *op.CancelPolicy:
		return e.handleCancelPolicy(ctx, o)
	case *op.AuthorizeOracle:
		return e.handleAuthorizeOracle(o)
	case *op.RevokeOracle:
		return e.handleRevokeOracle(o)
	case *op.FundReserve:
		return e.handleFundReserve(o)
	case *op.WithdrawReserve:
		return e.handleWithdrawReserve(ctx, o)
	case *op.UpdateParameters:
		return e.handleUpdateParameters(o)
	case *op.UpdatePayoutTiers:
		return e.handleUpdatePayoutTiers(o)
	case *op.Pause:
		return e.handlePause(o)
	case *op.Unpause:
		return e.handleUnpause(o)
	case *op.TransferAdmin:
		return e.handleTransferAdmin(o)
	default:
		return nil, fmt.Errorf("%w: unknown operation type %T", ErrValidation, oper)
	}
}

// applyBatch validates balance and applies. An unbalanced batch is a bug
// in journal generation, never a caller error.
func (e *Engine) applyBatch(batch *ledger.Batch) {
	if err := e.validator.ValidateBatchBalance(batch); err != nil {
		panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
	}
	if err := e.tracker.ApplyBatch(batch); err != nil {
		panic(fmt.Sprintf("FATAL: apply batch failed: %v", err))
	}
	if e.metrics != nil {
		for _, j := range batch.Journals {
			e.metrics.Journals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
}

// transfer performs the single external interaction, guarded so that a
// synchronous callback into Execute is rejected instead of deadlocking.
func (e *Engine) transfer(ctx context.Context, party uuid.UUID, amount int64, memo string) error {
	e.transferGuard.Store(true)
	defer e.transferGuard.Store(false)

	if err := e.gateway.Transfer(ctx, party, amount, memo); err != nil {
		return fmt.Errorf("%w: %v", ErrTransfer, err)
	}
	return nil
}

// --- Policy operations ---

func (e *Engine) handlePurchasePolicy(o *op.PurchasePolicy) (*appliedOp, error) {
	if e.roles.Paused() {
		return nil, fmt.Errorf("%w: new policy admission is paused", ErrState)
	}
	if o.Holder == uuid.Nil {
		return nil, fmt.Errorf("%w: holder must not be nil", ErrValidation)
	}
	if o.FlightID == "" {
		return nil, fmt.Errorf("%w: flight id must not be empty", ErrValidation)
	}

	params := e.params.Params()
	if o.Premium < params.MinPremium || o.Premium > params.MaxPremium {
		return nil, fmt.Errorf("%w: premium %d outside [%d, %d]",
			ErrValidation, o.Premium, params.MinPremium, params.MaxPremium)
	}

	// The departure must be strictly more than the lead time ahead, so
	// equality rejects.
	now := e.clock.Now()
	if !o.Departure.After(now.Add(params.MinLeadTime)) {
		return nil, fmt.Errorf("%w: departure %s is not more than %s away",
			ErrValidation, o.Departure.Format(time.RFC3339), params.MinLeadTime)
	}

	// MaxPayout is fixed here from the multiplier in force at purchase.
	// The multiplier is admin-set with no upper bound, so the product is
	// checked.
	maxPayout, ok := money.MulChecked(o.Premium, params.PayoutMultiplier)
	if !ok {
		return nil, fmt.Errorf("%w: premium %d times multiplier %d overflows",
			ErrValidation, o.Premium, params.PayoutMultiplier)
	}

	// Admission solvency: the pool as it stands, before this premium is
	// collected, must cover this policy's own maximum payout. Outstanding
	// exposure of other Active policies is observed but not enforced.
	if e.tracker.ReserveBalance() < maxPayout {
		return nil, fmt.Errorf("%w: reserve %d cannot cover max payout %d",
			ErrResource, e.tracker.ReserveBalance(), maxPayout)
	}

	batch, err := e.journalGen.GeneratePremium(
		o.IdempotencyKey(), e.policies.NextID(), o.Holder, o.Premium,
		e.sequence, now.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	e.applyBatch(batch)

	policy := &state.Policy{
		Holder:      o.Holder,
		FlightID:    o.FlightID,
		Departure:   o.Departure,
		PurchasedAt: now,
		PremiumPaid: o.Premium,
		MaxPayout:   maxPayout,
	}
	id := e.policies.Create(policy)

	if e.metrics != nil {
		e.metrics.PoliciesPurchased.Inc()
		e.metrics.PremiumsCollected.Add(float64(o.Premium))
	}

	return &appliedOp{
		notices: []notice{{
			typ:      op.NotificationPolicyPurchased,
			policyID: id,
			payload: op.PolicyPurchasedPayload{
				PolicyID:  id,
				Holder:    o.Holder,
				FlightID:  o.FlightID,
				Departure: o.Departure,
				Premium:   o.Premium,
				MaxPayout: maxPayout,
			},
		}},
		batch:  batch,
		result: Result{PolicyID: id},
	}, nil
}

func validateReportFields(flightID string, dayBucket, delayMinutes int64) error {
	if flightID == "" {
		return fmt.Errorf("%w: flight id must not be empty", ErrValidation)
	}
	if dayBucket < 0 {
		return fmt.Errorf("%w: day bucket must be >= 0, got %d", ErrValidation, dayBucket)
	}
	if delayMinutes < 0 {
		return fmt.Errorf("%w: delay minutes must be >= 0, got %d", ErrValidation, delayMinutes)
	}
	return nil
}

func (e *Engine) storeReport(flightID string, dayBucket int64, status state.FlightStatus, delayMinutes int64) notice {
	report := &state.FlightReport{
		FlightID:     flightID,
		DayBucket:    dayBucket,
		Status:       status,
		DelayMinutes: delayMinutes,
		ReportedAt:   e.clock.Now(),
	}
	key := e.reports.Put(report)

	if e.metrics != nil {
		e.metrics.ReportsStored.Inc()
	}

	return notice{
		typ: op.NotificationFlightReported,
		payload: op.FlightReportedPayload{
			FlightID:     flightID,
			DayBucket:    dayBucket,
			ReportKey:    key.String(),
			Status:       status.String(),
			DelayMinutes: delayMinutes,
		},
	}
}

func (e *Engine) handleReportFlightStatus(o *op.ReportFlightStatus) (*appliedOp, error) {
	if err := validateReportFields(o.FlightID, o.DayBucket, o.DelayMinutes); err != nil {
		return nil, err
	}

	n := e.storeReport(o.FlightID, o.DayBucket, o.Status, o.DelayMinutes)
	return &appliedOp{notices: []notice{n}}, nil
}

func (e *Engine) handleBatchReportFlightStatus(o *op.BatchReportFlightStatus) (*appliedOp, error) {
	n := len(o.FlightIDs)
	if len(o.DayBuckets) != n || len(o.Statuses) != n || len(o.DelayMinutes) != n {
		return nil, fmt.Errorf("%w: batch report sequences have mismatched lengths (%d/%d/%d/%d)",
			ErrValidation, n, len(o.DayBuckets), len(o.Statuses), len(o.DelayMinutes))
	}

	// Validate everything before writing anything: the batch is
	// all-or-nothing.
	for i := 0; i < n; i++ {
		if err := validateReportFields(o.FlightIDs[i], o.DayBuckets[i], o.DelayMinutes[i]); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	notices := make([]notice, 0, n)
	for i := 0; i < n; i++ {
		notices = append(notices, e.storeReport(o.FlightIDs[i], o.DayBuckets[i], o.Statuses[i], o.DelayMinutes[i]))
	}

	return &appliedOp{notices: notices}, nil
}

func (e *Engine) handleProcessClaim(ctx context.Context, o *op.ProcessClaim) (*appliedOp, error) {
	policy, err := e.policies.Get(o.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}
	if o.Initiator != policy.Holder && !e.roles.IsAdmin(o.Initiator) {
		return nil, fmt.Errorf("%w: claim on policy %d requires holder or admin", ErrUnauthorized, o.PolicyID)
	}
	if policy.Status != state.PolicyStatusActive {
		return nil, fmt.Errorf("%w: policy %d is %s, already settled", ErrState, policy.ID, policy.Status)
	}

	report, _ := e.reports.Get(state.NewReportKey(policy.FlightID, policy.DepartureBucket()))
	assessment := claims.Assess(policy, report, e.tiers)

	switch assessment.Outcome {
	case claims.OutcomeNoReport:
		return nil, fmt.Errorf("%w: no flight report for policy %d yet", ErrState, policy.ID)

	case claims.OutcomeExpire:
		if err := e.policies.Transition(policy, state.PolicyStatusExpired); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrState, err)
		}
		policy.DelayHours = assessment.DelayHours

		if e.metrics != nil {
			e.metrics.ClaimsProcessed.WithLabelValues("expired").Inc()
		}

		return &appliedOp{
			notices: []notice{{
				typ:      op.NotificationPolicyExpired,
				policyID: policy.ID,
				payload: op.PolicyExpiredPayload{
					PolicyID: policy.ID,
					Reason:   expireReason(assessment),
				},
			}},
			result: Result{PolicyID: policy.ID},
		}, nil
	}

	// Payout path: checks done, now effects, then the one external
	// interaction, rolling back everything if the transfer fails.
	batch, err := e.journalGen.GeneratePayout(
		o.IdempotencyKey(), policy.ID, policy.Holder, assessment.PayoutAmount,
		e.sequence, e.clock.Now().UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}

	saved := *policy
	e.applyBatch(batch)

	if err := e.policies.Transition(policy, state.PolicyStatusClaimed); err != nil {
		e.tracker.RevertBatch(batch)
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}
	policy.DelayHours = assessment.DelayHours
	policy.PayoutAmount = assessment.PayoutAmount

	if err := e.transfer(ctx, policy.Holder, assessment.PayoutAmount,
		fmt.Sprintf("claim payout policy %d", policy.ID)); err != nil {
		e.tracker.RevertBatch(batch)
		*policy = saved
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.ClaimsProcessed.WithLabelValues("claimed").Inc()
		e.metrics.PayoutsTotal.Add(float64(assessment.PayoutAmount))
	}

	return &appliedOp{
		notices: []notice{{
			typ:      op.NotificationClaimProcessed,
			policyID: policy.ID,
			payload: op.ClaimProcessedPayload{
				PolicyID:     policy.ID,
				Holder:       policy.Holder,
				DelayHours:   assessment.DelayHours,
				PayoutAmount: assessment.PayoutAmount,
			},
		}},
		batch:  batch,
		result: Result{PolicyID: policy.ID, PayoutAmount: assessment.PayoutAmount},
	}, nil
}

func expireReason(a claims.Assessment) string {
	if a.FlightStatus == state.FlightStatusOnTime {
		return "flight on time"
	}
	return fmt.Sprintf("delay of %dh below every payout tier", a.DelayHours)
}

// CancelRefundBps is the refunded share of the premium on cancellation.
// The remaining 10% is retained by the pool as a cancellation fee.
const CancelRefundBps int64 = 9_000

func (e *Engine) handleCancelPolicy(ctx context.Context, o *op.CancelPolicy) (*appliedOp, error) {
	policy, err := e.policies.Get(o.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}
	if o.Initiator != policy.Holder && !e.roles.IsAdmin(o.Initiator) {
		return nil, fmt.Errorf("%w: cancelling policy %d requires holder or admin", ErrUnauthorized, o.PolicyID)
	}
	if policy.Status != state.PolicyStatusActive {
		return nil, fmt.Errorf("%w: policy %d is %s, cannot cancel", ErrState, policy.ID, policy.Status)
	}

	// Strictly before departure. At the exact departure instant the
	// policy belongs to claim processing.
	if !e.clock.Now().Before(policy.Departure) {
		return nil, fmt.Errorf("%w: policy %d departure has passed", ErrState, policy.ID)
	}

	refund := money.ApplyBasisPoints(policy.PremiumPaid, CancelRefundBps)

	var batch *ledger.Batch
	saved := *policy

	if refund > 0 {
		batch, err = e.journalGen.GenerateRefund(
			o.IdempotencyKey(), policy.ID, policy.Holder, refund,
			e.sequence, e.clock.Now().UnixMicro())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResource, err)
		}
		e.applyBatch(batch)
	}

	if err := e.policies.Transition(policy, state.PolicyStatusCancelled); err != nil {
		if batch != nil {
			e.tracker.RevertBatch(batch)
		}
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}

	if refund > 0 {
		if err := e.transfer(ctx, policy.Holder, refund,
			fmt.Sprintf("cancellation refund policy %d", policy.ID)); err != nil {
			e.tracker.RevertBatch(batch)
			*policy = saved
			return nil, err
		}
	}

	if e.metrics != nil {
		e.metrics.RefundsTotal.Add(float64(refund))
	}

	return &appliedOp{
		notices: []notice{{
			typ:      op.NotificationPolicyCancelled,
			policyID: policy.ID,
			payload: op.PolicyCancelledPayload{
				PolicyID: policy.ID,
				Holder:   policy.Holder,
				Refund:   refund,
			},
		}},
		batch:  batch,
		result: Result{PolicyID: policy.ID, RefundAmount: refund},
	}, nil
}

func (e *Engine) handleCheckClaimStatus(o *op.CheckClaimStatus) (*Result, error) {
	policy, err := e.policies.Get(o.PolicyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrState, err)
	}

	preview := &ClaimPreview{
		PolicyID:     policy.ID,
		PolicyStatus: policy.Status.String(),
	}

	if policy.Status != state.PolicyStatusActive {
		// Already settled: report the recorded outcome
		preview.DelayHours = policy.DelayHours
		preview.PayoutAmount = policy.PayoutAmount
		return &Result{PolicyID: policy.ID, Preview: preview}, nil
	}

	report, ok := e.reports.Get(state.NewReportKey(policy.FlightID, policy.DepartureBucket()))
	preview.Reported = ok && report.Status != state.FlightStatusUnknown

	assessment := claims.Assess(policy, report, e.tiers)
	preview.FlightStatus = assessment.FlightStatus.String()
	preview.DelayHours = assessment.DelayHours
	preview.PayoutBps = assessment.PayoutBps
	preview.PayoutAmount = assessment.PayoutAmount

	return &Result{PolicyID: policy.ID, Preview: preview}, nil
}

// --- Admin operations ---

func (e *Engine) handleAuthorizeOracle(o *op.AuthorizeOracle) (*appliedOp, error) {
	if err := e.roles.AuthorizeOracle(o.Oracle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return &appliedOp{
		notices: []notice{{
			typ:     op.NotificationOracleAuthorized,
			payload: op.OraclePayload{Oracle: o.Oracle},
		}},
	}, nil
}

func (e *Engine) handleRevokeOracle(o *op.RevokeOracle) (*appliedOp, error) {
	e.roles.RevokeOracle(o.Oracle)
	return &appliedOp{
		notices: []notice{{
			typ:     op.NotificationOracleRevoked,
			payload: op.OraclePayload{Oracle: o.Oracle},
		}},
	}, nil
}

func (e *Engine) handleFundReserve(o *op.FundReserve) (*appliedOp, error) {
	if o.Amount <= 0 {
		return nil, fmt.Errorf("%w: funding amount must be positive, got %d", ErrValidation, o.Amount)
	}

	batch, err := e.journalGen.GenerateFunding(
		o.IdempotencyKey(), o.Funder, o.Amount,
		e.sequence, e.clock.Now().UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	e.applyBatch(batch)

	return &appliedOp{
		notices: []notice{{
			typ: op.NotificationReserveFunded,
			payload: op.ReserveMovedPayload{
				Party:   o.Funder,
				Amount:  o.Amount,
				Balance: e.tracker.ReserveBalance(),
			},
		}},
		batch: batch,
	}, nil
}

func (e *Engine) handleWithdrawReserve(ctx context.Context, o *op.WithdrawReserve) (*appliedOp, error) {
	if o.Amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive, got %d", ErrValidation, o.Amount)
	}

	batch, err := e.journalGen.GenerateWithdrawal(
		o.IdempotencyKey(), o.Admin, o.Amount,
		e.sequence, e.clock.Now().UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}
	e.applyBatch(batch)

	if err := e.transfer(ctx, o.Admin, o.Amount, "reserve withdrawal"); err != nil {
		e.tracker.RevertBatch(batch)
		return nil, err
	}

	return &appliedOp{
		notices: []notice{{
			typ: op.NotificationReserveWithdrawn,
			payload: op.ReserveMovedPayload{
				Party:   o.Admin,
				Amount:  o.Amount,
				Balance: e.tracker.ReserveBalance(),
			},
		}},
		batch: batch,
	}, nil
}

func (e *Engine) handleUpdateParameters(o *op.UpdateParameters) (*appliedOp, error) {
	next := state.Params{
		MinPremium:       o.MinPremium,
		MaxPremium:       o.MaxPremium,
		PayoutMultiplier: o.PayoutMultiplier,
		MinLeadTime:      o.MinLeadTime,
	}
	if err := e.params.Update(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return &appliedOp{
		notices: []notice{{
			typ: op.NotificationParametersUpdated,
			payload: op.ParametersUpdatedPayload{
				MinPremium:       next.MinPremium,
				MaxPremium:       next.MaxPremium,
				PayoutMultiplier: next.PayoutMultiplier,
				MinLeadTimeSecs:  int64(next.MinLeadTime.Seconds()),
			},
		}},
	}, nil
}

func (e *Engine) handleUpdatePayoutTiers(o *op.UpdatePayoutTiers) (*appliedOp, error) {
	if err := e.tiers.Replace(o.Tiers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Replace sorted the table; publish what is actually in force.
	inForce := e.tiers.Tiers()
	tierPayloads := make([]op.TierPayload, 0, len(inForce))
	for _, t := range inForce {
		tierPayloads = append(tierPayloads, op.TierPayload{
			MinDelayHours: t.MinDelayHours,
			PayoutBps:     t.PayoutBps,
		})
	}

	return &appliedOp{
		notices: []notice{{
			typ:     op.NotificationTiersUpdated,
			payload: op.TiersUpdatedPayload{TierCount: len(inForce), Tiers: tierPayloads},
		}},
	}, nil
}

func (e *Engine) handlePause(o *op.Pause) (*appliedOp, error) {
	e.roles.SetPaused(true)
	return &appliedOp{notices: []notice{{typ: op.NotificationPaused}}}, nil
}

func (e *Engine) handleUnpause(o *op.Unpause) (*appliedOp, error) {
	e.roles.SetPaused(false)
	return &appliedOp{notices: []notice{{typ: op.NotificationUnpaused}}}, nil
}

func (e *Engine) handleTransferAdmin(o *op.TransferAdmin) (*appliedOp, error) {
	if err := e.roles.TransferAdmin(o.NewAdmin); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return &appliedOp{
		notices: []notice{{
			typ:     op.NotificationAdminTransferred,
			payload: op.AdminTransferredPayload{NewAdmin: o.NewAdmin},
		}},
	}, nil
}

// --- State hashing & invariants ---

// computeStateDigest builds canonical bytes over the accounts the batch
// touched. Batchless operations hash an empty digest; the chain still
// advances through prev_hash and sequence.
func (e *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	if batch == nil {
		return nil
	}

	affected := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		affected[j.DebitAccount] = true
		affected[j.CreditAccount] = true
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*40)
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, e.tracker.GetBalance(key))
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants runs after every applied operation. Reserve
// solvency is checked every time; the zero-sum check runs periodically.
func (e *Engine) postCheckInvariants() error {
	if err := e.validator.ValidateReserveSolvent(); err != nil {
		return err
	}

	if e.sequence > 0 && e.sequence%1000 == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			return err
		}
		if err := e.validator.ValidateLifetimeConsistency(); err != nil {
			return err
		}
	}

	return nil
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Policies        []*state.Policy
	Reports         []*state.FlightReport
	Tiers           []state.PayoutTier
	Params          state.Params
	Admin           uuid.UUID
	Oracles         []uuid.UUID
	Paused          bool
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the engine's in-memory state. There is no
// input replay: the snapshot written at shutdown is the full state.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence + 1
	e.hasher.SetPrevHash(snap.StateHash)

	for key, balance := range snap.Balances {
		e.tracker.SetBalance(key, balance)
	}

	// Restore in id order so the holder indexes come back in purchase
	// order.
	policies := make([]*state.Policy, len(snap.Policies))
	copy(policies, snap.Policies)
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })
	for _, p := range policies {
		e.policies.Restore(p)
	}

	for _, r := range snap.Reports {
		e.reports.Put(r)
	}

	if len(snap.Tiers) > 0 {
		if err := e.tiers.Replace(snap.Tiers); err != nil {
			panic(fmt.Sprintf("FATAL: snapshot tier table invalid: %v", err))
		}
	}

	if err := e.params.Update(snap.Params); err != nil {
		panic(fmt.Sprintf("FATAL: snapshot parameters invalid: %v", err))
	}

	if snap.Admin != uuid.Nil {
		_ = e.roles.TransferAdmin(snap.Admin)
	}
	for _, oracle := range snap.Oracles {
		_ = e.roles.AuthorizeOracle(oracle)
	}
	e.roles.SetPaused(snap.Paused)
}

// WarmLRU loads recent idempotency keys so recently applied operations
// skip the cold-path DB lookup after a restart.
func (e *Engine) WarmLRU(keys []string) {
	e.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the next sequence to assign.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:        e.sequence - 1,
		StateHash:       e.hasher.GetPrevHash(),
		Balances:        e.tracker.Snapshot(),
		Policies:        e.policies.All(),
		Reports:         e.reports.All(),
		Tiers:           e.tiers.Tiers(),
		Params:          e.params.Params(),
		Admin:           e.roles.Admin(),
		Oracles:         e.roles.Oracles(),
		Paused:          e.roles.Paused(),
		IdempotencyKeys: e.idempotency.lru.GetAllKeys(),
	}
}
