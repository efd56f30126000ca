package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Kizaaaa/insurix/internal/core"
	"github.com/Kizaaaa/insurix/internal/observability"
	"github.com/Kizaaaa/insurix/internal/op"
)

// ProjectionOutput mirrors the data projection workers need. The
// orchestrator bridges between core.Output and this via FromEngine.
type ProjectionOutput struct {
	Sequence  int64
	Type      string
	PolicyID  int64
	Payload   []byte
	Journals  []JournalEntry
	Timestamp time.Time
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
}

// FromEngine flattens one engine output for projection consumption.
func FromEngine(out core.Output) ProjectionOutput {
	n := out.Notification

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		log.Printf("WARN: failed to marshal projection payload: %v", err)
		payload = []byte("{}")
	}

	var journals []JournalEntry
	if out.Batch != nil {
		journals = make([]JournalEntry, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			journals = append(journals, JournalEntry{
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
			})
		}
	}

	return ProjectionOutput{
		Sequence:  n.Sequence,
		Type:      n.Type.String(),
		PolicyID:  int64(n.PolicyID),
		Payload:   payload,
		Journals:  journals,
		Timestamp: n.Timestamp,
	}
}

// ProjectionWorker updates projection tables from applied operations.
// The projection channel is non-blocking with drop: if this worker
// falls behind, projections can be rebuilt from the notification log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue. Projections are eventually consistent and
				// can be rebuilt from the notification log.
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues(output.Type).Observe(time.Since(start).Seconds())
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyNotification(ctx, tx, output); err != nil {
		return err
	}

	// Update balance projections from journal entries
	for _, j := range output.Journals {
		if err := updateBalanceProjection(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// applyNotification routes a notification to its projection table.
// Unknown and admin-only types fall through: their effect on balances
// is already covered by the journal rows.
func applyNotification(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	switch output.Type {
	case "PolicyPurchased":
		var p op.PolicyPurchasedPayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode PolicyPurchased: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.policies
				(policy_id, holder, flight_id, departure, premium_paid, max_payout, status, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'Active', $7, $8)
			ON CONFLICT (policy_id) DO NOTHING
		`, p.PolicyID, p.Holder.String(), p.FlightID, p.Departure, p.Premium, p.MaxPayout, output.Sequence, output.Timestamp)
		return err

	case "ClaimProcessed":
		var p op.ClaimProcessedPayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode ClaimProcessed: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET status = 'Claimed', delay_hours = $2, payout_amount = $3, last_sequence = $4, updated_at = $5
			WHERE policy_id = $1
		`, p.PolicyID, p.DelayHours, p.PayoutAmount, output.Sequence, output.Timestamp)
		return err

	case "PolicyExpired":
		var p op.PolicyExpiredPayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode PolicyExpired: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET status = 'Expired', last_sequence = $2, updated_at = $3
			WHERE policy_id = $1
		`, p.PolicyID, output.Sequence, output.Timestamp)
		return err

	case "PolicyCancelled":
		var p op.PolicyCancelledPayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode PolicyCancelled: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET status = 'Cancelled', payout_amount = $2, last_sequence = $3, updated_at = $4
			WHERE policy_id = $1
		`, p.PolicyID, p.Refund, output.Sequence, output.Timestamp)
		return err

	case "FlightReported":
		var p op.FlightReportedPayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode FlightReported: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.flight_reports
				(flight_id, day_bucket, report_key, status, delay_minutes, last_sequence, reported_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (flight_id, day_bucket)
			DO UPDATE SET status = $4, delay_minutes = $5, last_sequence = $6, reported_at = $7
		`, p.FlightID, p.DayBucket, p.ReportKey, p.Status, p.DelayMinutes, output.Sequence, output.Timestamp)
		return err

	case "OracleAuthorized":
		var p op.OraclePayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode OracleAuthorized: %w", err)
		}
		return upsertOracle(ctx, tx, p.Oracle.String(), true, output.Sequence)

	case "OracleRevoked":
		var p op.OraclePayload
		if err := json.Unmarshal(output.Payload, &p); err != nil {
			return fmt.Errorf("decode OracleRevoked: %w", err)
		}
		return upsertOracle(ctx, tx, p.Oracle.String(), false, output.Sequence)

	case "ParametersUpdated":
		return upsertConfig(ctx, tx, "params", output.Payload, output.Sequence)

	case "TiersUpdated":
		return upsertConfig(ctx, tx, "tiers", output.Payload, output.Sequence)
	}

	return nil
}

// upsertOracle records an oracle's authorization. Revoked oracles stay
// as rows with authorized = false, so a revocation is distinguishable
// from an address that was never authorized.
func upsertOracle(ctx context.Context, tx *sql.Tx, oracle string, authorized bool, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.oracles (oracle, authorized, last_sequence, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (oracle) DO UPDATE SET authorized = $2, last_sequence = $3, updated_at = NOW()
	`, oracle, authorized, sequence)
	return err
}

// upsertConfig stores the latest config payload under a fixed key.
// UpsertInitialConfig seeds the same rows at startup so reads never
// depend on an admin update having happened.
func upsertConfig(ctx context.Context, tx *sql.Tx, key string, payload []byte, sequence int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.config (config_key, payload, last_sequence, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (config_key) DO UPDATE SET payload = $2, last_sequence = $3, updated_at = NOW()
	`, key, payload, sequence)
	return err
}

// UpsertInitialConfig writes the parameters and tiers in force at
// startup. Called by the orchestrator after the engine is restored.
func UpsertInitialConfig(ctx context.Context, db *sql.DB, params op.ParametersUpdatedPayload, tiers op.TiersUpdatedPayload, sequence int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	tiersJSON, err := json.Marshal(tiers)
	if err != nil {
		return err
	}

	if err := upsertConfig(ctx, tx, "params", paramsJSON, sequence); err != nil {
		return err
	}
	if err := upsertConfig(ctx, tx, "tiers", tiersJSON, sequence); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertInitialOracles marks the restored oracle set authorized at
// startup, so the read surface matches the engine before any further
// admin operation lands.
func UpsertInitialOracles(ctx context.Context, db *sql.DB, oracles []string, sequence int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, oracle := range oracles {
		if err := upsertOracle(ctx, tx, oracle, true, sequence); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry, sequence int64) error {
	// Debit account: balance increases
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`, j.DebitAccount, j.Amount, sequence); err != nil {
		return err
	}

	// Credit account: balance decreases
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, -$2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $2, last_sequence = $3
	`, j.CreditAccount, j.Amount, sequence); err != nil {
		return err
	}

	return nil
}

// RebuildProjections rebuilds all projection tables from the
// notification log. Balances rebuild in SQL; policies and flight
// reports replay their notification payloads.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.policies`,
		`TRUNCATE projections.flight_reports`,
		`TRUNCATE projections.oracles`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild balances from journal entries: debits add, credits subtract
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM ledger_log.journal
		GROUP BY debit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM ledger_log.journal
		GROUP BY credit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Replay policy, report, and oracle notifications in sequence order
	rows, err := db.QueryContext(ctx, `
		SELECT sequence, notification_type, policy_id, payload, timestamp
		FROM ledger_log.notifications
		WHERE notification_type IN
			('PolicyPurchased', 'ClaimProcessed', 'PolicyExpired', 'PolicyCancelled',
			 'FlightReported', 'OracleAuthorized', 'OracleRevoked')
		ORDER BY sequence ASC
	`)
	if err != nil {
		return fmt.Errorf("load notifications for rebuild: %w", err)
	}
	defer rows.Close()

	var outputs []ProjectionOutput
	for rows.Next() {
		var out ProjectionOutput
		if err := rows.Scan(&out.Sequence, &out.Type, &out.PolicyID, &out.Payload, &out.Timestamp); err != nil {
			return err
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, out := range outputs {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := applyNotification(ctx, tx, out); err != nil {
			tx.Rollback()
			return fmt.Errorf("replay seq=%d: %w", out.Sequence, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
