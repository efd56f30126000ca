package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the insurix ledger.
type Metrics struct {
	// --- Engine ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Journals    *prometheus.CounterVec
	Sequence    prometheus.Gauge

	// --- Domain ---
	PoliciesPurchased   prometheus.Counter
	PremiumsCollected   prometheus.Counter
	ClaimsProcessed     *prometheus.CounterVec
	PayoutsTotal        prometheus.Counter
	RefundsTotal        prometheus.Counter
	ReportsStored       prometheus.Counter
	ReserveBalance      prometheus.Gauge
	OutstandingExposure prometheus.Gauge

	// --- Channel & Backpressure ---
	ProjectionDrops prometheus.Counter
	PublishDrops    prometheus.Counter

	// --- Idempotency ---
	DuplicateOps *prometheus.CounterVec

	// --- Feed ingestion ---
	FeedMessages    *prometheus.CounterVec
	FeedParseErrors prometheus.Counter

	// --- Persistence ---
	PersistNotificationsWritten prometheus.Counter
	PersistJournalsWritten      prometheus.Counter
	PersistBatchSize            prometheus.Histogram
	PersistBatchDur             prometheus.Histogram
	PersistErrors               *prometheus.CounterVec
	PersistLastSequence         prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken    prometheus.Counter
	SnapshotDuration prometheus.Histogram
	SnapshotLastSeq  prometheus.Gauge

	// --- Projection ---
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op_type"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_ops_rejected_total",
			Help: "Operations rejected (validation, auth, state, resource, transfer)",
		}, []string{"op_type", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insurix_op_apply_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op_type"}),

		Journals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "insurix_engine_sequence",
			Help: "Current global notification sequence",
		}),

		PoliciesPurchased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_policies_purchased_total",
			Help: "Policies admitted",
		}),

		PremiumsCollected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_premiums_collected_microunits_total",
			Help: "Premiums collected (micro-units)",
		}),

		ClaimsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_claims_processed_total",
			Help: "Claim settlements by outcome (claimed/expired)",
		}, []string{"outcome"}),

		PayoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_payouts_microunits_total",
			Help: "Claim payouts made (micro-units)",
		}),

		RefundsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_refunds_microunits_total",
			Help: "Cancellation refunds made (micro-units)",
		}),

		ReportsStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_flight_reports_stored_total",
			Help: "Flight reports written (including overwrites)",
		}),

		ReserveBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "insurix_reserve_balance_microunits",
			Help: "Current reserve pool balance",
		}),

		OutstandingExposure: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "insurix_outstanding_exposure_microunits",
			Help: "Sum of max payouts across active policies (observed, not enforced)",
		}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_projection_drops_total",
			Help: "Notifications dropped due to full projection channel",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_publish_drops_total",
			Help: "Notifications dropped due to full publish channel",
		}),

		DuplicateOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_duplicate_ops_total",
			Help: "Duplicate operations skipped",
		}, []string{"op_type"}),

		FeedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_feed_messages_total",
			Help: "Oracle feed messages by subject and result",
		}, []string{"subject", "result"}),

		FeedParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_feed_parse_errors_total",
			Help: "Oracle feed payloads that failed to parse",
		}),

		PersistNotificationsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_persist_notifications_written_total",
			Help: "Notifications written to Postgres",
		}),

		PersistJournalsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "insurix_persist_batch_size",
			Help:    "Notifications per write batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "insurix_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "insurix_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "insurix_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "insurix_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "insurix_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insurix_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "insurix_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insurix_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
