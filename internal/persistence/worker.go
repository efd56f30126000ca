package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/Kizaaaa/insurix/internal/observability"
)

// EngineOutput mirrors core.Output as flat database rows. The bridge in
// bridge.go converts between the two; this package never holds the
// engine's in-memory types.
type EngineOutput struct {
	NotificationRow NotificationRow
	JournalRows     []JournalRow
}

// PersistenceWorker drains the persist channel and batch-writes to
// Postgres. This goroutine runs independently from the deterministic
// engine. The persist channel uses BLOCKING sends from the engine, so
// if this worker falls behind, the engine stalls and no notification
// is lost.
type PersistenceWorker struct {
	writer       *NotificationLogWriter
	db           *sql.DB
	inputChan    <-chan EngineOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan EngineOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:       NewNotificationLogWriter(db, batchSize, flushTimeout),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout
// expires. Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	notificationBatch := make([]NotificationRow, 0, pw.batchSize)
	journalBatch := make([]JournalRow, 0, pw.batchSize*2) // ~2 journals per notification avg

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(notificationBatch) > 0 {
				if err := pw.flush(context.Background(), notificationBatch, journalBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				// Channel closed, flush and exit
				if len(notificationBatch) > 0 {
					if err := pw.flush(context.Background(), notificationBatch, journalBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			notificationBatch = append(notificationBatch, output.NotificationRow)
			journalBatch = append(journalBatch, output.JournalRows...)

			if len(notificationBatch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, notificationBatch, journalBatch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				notificationBatch = notificationBatch[:0]
				journalBatch = journalBatch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			// Flush timeout, write whatever we have
			if len(notificationBatch) > 0 {
				if err := pw.flushWithRetry(ctx, notificationBatch, journalBatch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				notificationBatch = notificationBatch[:0]
				journalBatch = journalBatch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry attempts to flush with exponential backoff. The worker
// NEVER drops notifications: it retries indefinitely until the write
// succeeds or the context is cancelled (graceful shutdown).
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, notifications []NotificationRow, journals []JournalRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, notifications=%d)",
				attempt, backoff, len(notifications))
			select {
			case <-ctx.Done():
				// Graceful shutdown: attempt one final flush with a
				// background context so the batch is not lost.
				finalErr := pw.flush(context.Background(), notifications, journals)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, notifications, journals)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, notifications []NotificationRow, journals []JournalRow) error {
	start := time.Now()

	// Notifications and journals commit in a single transaction
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteNotificationBatch(ctx, tx, notifications); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_notifications").Inc()
		}
		return err
	}

	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(notifications)))
		pw.metrics.PersistNotificationsWritten.Add(float64(len(notifications)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		if len(notifications) > 0 {
			pw.metrics.PersistLastSequence.Set(float64(notifications[len(notifications)-1].Sequence))
		}
	}

	return nil
}

// GetWriter returns the underlying writer.
func (pw *PersistenceWorker) GetWriter() *NotificationLogWriter {
	return pw.writer
}
