package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker implements DB-based deduplication against
// the durable notification log. It is the second tier behind the
// engine's in-memory LRU.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db: db,
	}
}

// IsDuplicate checks if an operation with this key already produced a
// notification. The op type narrows the index scan; the key alone is
// globally unique by construction.
func (pic *PostgresIdempotencyChecker) IsDuplicate(opType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM ledger_log.notifications
        WHERE op_key = $1
        LIMIT 1
    `

	var exists int
	err := pic.db.QueryRowContext(ctx, query, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil // Not found, not a duplicate
	}

	if err != nil {
		return false, err // DB error
	}

	return true, nil
}

// LoadRecentKeys returns the op keys of the most recent notifications,
// newest first. Used to warm the engine's LRU on startup so recent
// duplicates are caught without a DB round trip.
func (pic *PostgresIdempotencyChecker) LoadRecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := pic.db.QueryContext(ctx, `
		SELECT op_key FROM ledger_log.notifications
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
