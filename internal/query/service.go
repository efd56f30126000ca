package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/state"
)

// ErrNotFound marks lookups that matched nothing. The HTTP layer maps
// it to 404.
var ErrNotFound = fmt.Errorf("not found")

// QueryService provides read-only access to projection tables. All
// responses include as_of_sequence so callers can reason about
// freshness relative to the notification stream.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetPolicy returns one policy by id.
func (qs *QueryService) GetPolicy(ctx context.Context, policyID uint64) (*PolicyResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p PolicyResponse
	p.AsOfSequence = asOfSeq

	var delayHours, payoutAmount sql.NullInt64
	err = qs.db.QueryRowContext(ctx, `
		SELECT policy_id, holder, flight_id, departure, premium_paid, max_payout,
		       status, delay_hours, payout_amount
		FROM projections.policies
		WHERE policy_id = $1
	`, policyID).Scan(
		&p.PolicyID, &p.Holder, &p.FlightID, &p.Departure, &p.PremiumPaid,
		&p.MaxPayout, &p.Status, &delayHours, &payoutAmount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: policy %d", ErrNotFound, policyID)
	}
	if err != nil {
		return nil, err
	}

	p.DelayHours = delayHours.Int64
	p.PayoutAmount = payoutAmount.Int64
	return &p, nil
}

// GetPoliciesByHolder returns a holder's policies in purchase order,
// optionally filtered by status. Supports cursor pagination on
// policy_id.
func (qs *QueryService) GetPoliciesByHolder(
	ctx context.Context,
	holder uuid.UUID,
	status *string,
	limit int,
	afterPolicyID *uint64,
) ([]PolicyResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT policy_id, holder, flight_id, departure, premium_paid, max_payout,
		       status, delay_hours, payout_amount
		FROM projections.policies
		WHERE holder = $1
	`
	args := []interface{}{holder.String()}
	argIdx := 2

	if status != nil {
		// Reject unknown status strings instead of returning an empty set
		if _, err := state.ParsePolicyStatus(*status); err != nil {
			return nil, err
		}
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *status)
		argIdx++
	}

	if afterPolicyID != nil {
		query += fmt.Sprintf(" AND policy_id > $%d", argIdx)
		args = append(args, *afterPolicyID)
		argIdx++
	}

	query += " ORDER BY policy_id ASC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []PolicyResponse
	for rows.Next() {
		var p PolicyResponse
		p.AsOfSequence = asOfSeq
		var delayHours, payoutAmount sql.NullInt64
		if err := rows.Scan(
			&p.PolicyID, &p.Holder, &p.FlightID, &p.Departure, &p.PremiumPaid,
			&p.MaxPayout, &p.Status, &delayHours, &payoutAmount,
		); err != nil {
			return nil, err
		}
		p.DelayHours = delayHours.Int64
		p.PayoutAmount = payoutAmount.Int64
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

// GetFlightReport returns the stored report for a flight and day bucket.
func (qs *QueryService) GetFlightReport(ctx context.Context, flightID string, dayBucket int64) (*FlightReportResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var r FlightReportResponse
	r.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT flight_id, day_bucket, report_key, status, delay_minutes, reported_at
		FROM projections.flight_reports
		WHERE flight_id = $1 AND day_bucket = $2
	`, flightID, dayBucket).Scan(
		&r.FlightID, &r.DayBucket, &r.ReportKey, &r.Status, &r.DelayMinutes, &r.ReportedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: report for %s/%d", ErrNotFound, flightID, dayBucket)
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// GetOracle returns the authorization state of one reporter. A reporter
// the ledger never authorized is ErrNotFound; a revoked one comes back
// with Authorized false.
func (qs *QueryService) GetOracle(ctx context.Context, oracle string) (*OracleResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var o OracleResponse
	o.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT oracle, authorized, updated_at
		FROM projections.oracles
		WHERE oracle = $1
	`, oracle).Scan(&o.Oracle, &o.Authorized, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: oracle %s", ErrNotFound, oracle)
	}
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// ListOracles returns every reporter with an authorization decision on
// record, in the order the decisions last changed.
func (qs *QueryService) ListOracles(ctx context.Context) (*OraclesResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT oracle, authorized, updated_at
		FROM projections.oracles
		ORDER BY last_sequence ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &OraclesResponse{AsOfSequence: asOfSeq}
	for rows.Next() {
		o := OracleResponse{AsOfSequence: asOfSeq}
		if err := rows.Scan(&o.Oracle, &o.Authorized, &o.UpdatedAt); err != nil {
			return nil, err
		}
		resp.Oracles = append(resp.Oracles, o)
	}
	return resp, rows.Err()
}

// GetReserveStats returns the reserve pool balance, lifetime boundary
// totals, and outstanding exposure across active policies.
func (qs *QueryService) GetReserveStats(ctx context.Context) (*ReserveStatsResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	stats := &ReserveStatsResponse{AsOfSequence: asOfSeq}

	stats.ReserveBalance, err = qs.getProjectedBalance(ctx, "system:reserve_pool")
	if err != nil {
		return nil, err
	}

	// External boundary accounts carry the mirror image of funds that
	// crossed the ledger boundary, so lifetime totals are their
	// negated balances.
	boundaries := []struct {
		path string
		dst  *int64
	}{
		{"external:premiums", &stats.LifetimePremiums},
		{"external:payouts", &stats.LifetimePayouts},
		{"external:refunds", &stats.LifetimeRefunds},
		{"external:funding", &stats.LifetimeFunding},
		{"external:withdrawals", &stats.LifetimeWithdrawals},
	}
	for _, b := range boundaries {
		balance, err := qs.getProjectedBalance(ctx, b.path)
		if err != nil {
			return nil, err
		}
		if balance < 0 {
			*b.dst = -balance
		} else {
			*b.dst = balance
		}
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(max_payout), 0), COUNT(*)
		FROM projections.policies
		WHERE status = 'Active'
	`).Scan(&stats.OutstandingExposure, &stats.ActivePolicies)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetParameters returns the parameters in force.
func (qs *QueryService) GetParameters(ctx context.Context) (*ParamsResponse, error) {
	payload, asOfSeq, err := qs.getConfig(ctx, "params")
	if err != nil {
		return nil, err
	}

	var p op.ParametersUpdatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode params config: %w", err)
	}

	return &ParamsResponse{
		MinPremium:       p.MinPremium,
		MaxPremium:       p.MaxPremium,
		PayoutMultiplier: p.PayoutMultiplier,
		MinLeadTimeSecs:  p.MinLeadTimeSecs,
		AsOfSequence:     asOfSeq,
	}, nil
}

// GetPayoutTiers returns the tier table in force.
func (qs *QueryService) GetPayoutTiers(ctx context.Context) (*TiersResponse, error) {
	payload, asOfSeq, err := qs.getConfig(ctx, "tiers")
	if err != nil {
		return nil, err
	}

	var p op.TiersUpdatedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode tiers config: %w", err)
	}

	resp := &TiersResponse{AsOfSequence: asOfSeq}
	for _, t := range p.Tiers {
		resp.Tiers = append(resp.Tiers, TierResponse{
			MinDelayHours: t.MinDelayHours,
			PayoutBps:     t.PayoutBps,
		})
	}
	return resp, nil
}

// GetJournalHistory returns journal entries for one policy with
// cursor-based pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	policyID uint64,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, op_ref, sequence,
		       debit_account, credit_account, amount, journal_type, policy_id, party, timestamp
		FROM ledger_log.journal
		WHERE policy_id = $1
	`
	args := []interface{}{policyID}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.PolicyID, &e.Party, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the notification log
// and the zero-sum invariant across projected balances.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT n1.sequence
		FROM ledger_log.notifications n1
		LEFT JOIN ledger_log.notifications n2 ON n2.sequence = n1.sequence - 1
		WHERE n1.sequence > 0 AND n1.prev_hash != COALESCE(n2.state_hash, n1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0) FROM projections.balances
	`).Scan(&report.GlobalImbalance)
	if err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.GlobalImbalance == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (qs *QueryService) getConfig(ctx context.Context, key string) ([]byte, int64, error) {
	var payload []byte
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT payload, last_sequence FROM projections.config WHERE config_key = $1
	`, key).Scan(&payload, &seq)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("%w: config %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, 0, err
	}
	return payload, seq, nil
}
