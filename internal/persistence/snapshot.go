package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager handles creating and loading state snapshots for
// recovery. Recovery is snapshot-only: the snapshot written at
// shutdown carries the full engine state, so restart needs no replay.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData contains the full in-memory state at a point in time.
type SnapshotData struct {
	Sequence        int64            `json:"sequence"`
	StateHash       []byte           `json:"state_hash"`
	Balances        map[string]int64 `json:"balances"` // AccountPath -> balance
	Policies        []PolicySnapshot `json:"policies"`
	Reports         []ReportSnapshot `json:"reports"`
	Tiers           []TierSnapshot   `json:"tiers"`
	Params          ParamsSnapshot   `json:"params"`
	Admin           string           `json:"admin"`
	Oracles         []string         `json:"oracles"`
	Paused          bool             `json:"paused"`
	IdempotencyKeys []string         `json:"idempotency_keys"` // Recent keys for LRU warming
	CreatedAt       time.Time        `json:"created_at"`
}

// PolicySnapshot is a serializable policy.
type PolicySnapshot struct {
	ID           uint64    `json:"id"`
	Holder       string    `json:"holder"`
	FlightID     string    `json:"flight_id"`
	Departure    time.Time `json:"departure"`
	PurchasedAt  time.Time `json:"purchased_at"`
	PremiumPaid  int64     `json:"premium_paid"`
	MaxPayout    int64     `json:"max_payout"`
	Status       string    `json:"status"`
	DelayHours   int64     `json:"delay_hours"`
	PayoutAmount int64     `json:"payout_amount"`
	Version      int64     `json:"version"`
}

// ReportSnapshot is a serializable flight report.
type ReportSnapshot struct {
	FlightID     string    `json:"flight_id"`
	DayBucket    int64     `json:"day_bucket"`
	Status       int32     `json:"status"`
	DelayMinutes int64     `json:"delay_minutes"`
	ReportedAt   time.Time `json:"reported_at"`
}

// TierSnapshot is a serializable payout tier.
type TierSnapshot struct {
	MinDelayHours int64 `json:"min_delay_hours"`
	PayoutBps     int64 `json:"payout_bps"`
}

// ParamsSnapshot is the serializable parameter set.
type ParamsSnapshot struct {
	MinPremium         int64 `json:"min_premium"`
	MaxPremium         int64 `json:"max_premium"`
	PayoutMultiplier   int64 `json:"payout_multiplier"`
	MinLeadTimeSeconds int64 `json:"min_lead_time_seconds"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres. Snapshots are taken on
// graceful shutdown and optionally on a periodic timer.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	sizeBytes := len(data)
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO ledger_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, sizeBytes, snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent snapshot. Returns nil when
// no snapshot exists (cold start).
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM ledger_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// GetLatestSequence returns the highest sequence in the notification log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM ledger_log.notifications
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty notification log
	}
	return seq.Int64, nil
}
