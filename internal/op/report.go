package op

import (
	"github.com/Kizaaaa/insurix/internal/state"
	"github.com/google/uuid"
)

// ReportFlightStatus writes the latest status for one flight/date key.
// Only authorized reporters may submit; later reports supersede earlier
// ones for the same key.
type ReportFlightStatus struct {
	// MessageID is the upstream feed message id, reused as the
	// idempotency key so NATS redeliveries are recognized.
	MessageID    string
	Reporter     uuid.UUID
	FlightID     string
	DayBucket    int64
	Status       state.FlightStatus
	DelayMinutes int64
}

func (r *ReportFlightStatus) IdempotencyKey() string {
	return r.MessageID
}

func (r *ReportFlightStatus) OpType() Type {
	return TypeReportFlightStatus
}

func (r *ReportFlightStatus) Caller() uuid.UUID {
	return r.Reporter
}

// BatchReportFlightStatus writes many reports in one operation. The four
// sequences must have equal length or the whole batch is rejected with no
// report written.
type BatchReportFlightStatus struct {
	MessageID    string
	Reporter     uuid.UUID
	FlightIDs    []string
	DayBuckets   []int64
	Statuses     []state.FlightStatus
	DelayMinutes []int64
}

func (b *BatchReportFlightStatus) IdempotencyKey() string {
	return b.MessageID
}

func (b *BatchReportFlightStatus) OpType() Type {
	return TypeBatchReportFlightStatus
}

func (b *BatchReportFlightStatus) Caller() uuid.UUID {
	return b.Reporter
}
