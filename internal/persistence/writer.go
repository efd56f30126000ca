package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// NotificationLogWriter writes notifications and journal entries to
// Postgres using batch inserts. Multi-row INSERT keeps the writer
// portable; switch to pgx CopyFrom if throughput ever demands it.
type NotificationLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// execer is satisfied by both *sql.DB and *sql.Tx so the same write
// path serves transactional flushes and one-off writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// NotificationRow represents a row in ledger_log.notifications
type NotificationRow struct {
	Sequence  int64
	Type      string
	OpKey     string
	PolicyID  int64 // zero for non-policy notifications
	Payload   []byte
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// JournalRow represents a row in ledger_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	OpRef         string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   int32
	PolicyID      int64
	Party         string
	Timestamp     int64
}

func NewNotificationLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *NotificationLogWriter {
	return &NotificationLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteNotificationBatch writes a batch of notifications using multi-row INSERT.
func (w *NotificationLogWriter) WriteNotificationBatch(ctx context.Context, exec execer, notifications []NotificationRow) error {
	if len(notifications) == 0 {
		return nil
	}

	query := `INSERT INTO ledger_log.notifications
		(sequence, notification_type, op_key, policy_id, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(notifications))
	args := make([]interface{}, 0, len(notifications)*8)

	for i, n := range notifications {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			n.Sequence, n.Type, n.OpKey, n.PolicyID,
			n.Payload, n.StateHash, n.PrevHash, n.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING" // Idempotent writes

	_, err := exec.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to ledger_log.journal.
func (w *NotificationLogWriter) WriteJournalBatch(ctx context.Context, exec execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	query := `INSERT INTO ledger_log.journal
		(journal_id, batch_id, op_ref, sequence, debit_account, credit_account, amount, journal_type, policy_id, party, timestamp)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*11)

	for i, j := range journals {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
			base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			j.JournalID, j.BatchID, j.OpRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount,
			j.JournalType, j.PolicyID, j.Party, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := exec.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload is a convenience wrapper for JSON-encoding notification
// payloads at the persistence boundary.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
