package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// FlightStatus is the reported outcome of a flight
type FlightStatus int32

const (
	FlightStatusUnknown FlightStatus = iota
	FlightStatusOnTime
	FlightStatusDelayed
	FlightStatusCancelled
)

func (s FlightStatus) String() string {
	switch s {
	case FlightStatusOnTime:
		return "OnTime"
	case FlightStatusDelayed:
		return "Delayed"
	case FlightStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ParseFlightStatus converts a wire string into a FlightStatus.
func ParseFlightStatus(s string) (FlightStatus, error) {
	switch s {
	case "on_time":
		return FlightStatusOnTime, nil
	case "delayed":
		return FlightStatusDelayed, nil
	case "cancelled":
		return FlightStatusCancelled, nil
	case "unknown":
		return FlightStatusUnknown, nil
	default:
		return FlightStatusUnknown, fmt.Errorf("unknown flight status %q", s)
	}
}

// ReportKey identifies the report shared by every policy on the same
// flight and departure-day bucket: sha256(flight_id ":" day_bucket).
// The aggregation is deliberate — one report settles all of them.
type ReportKey [32]byte

func (k ReportKey) String() string {
	return hex.EncodeToString(k[:])
}

// NewReportKey derives the deterministic key for a flight/date pair.
func NewReportKey(flightID string, dayBucket int64) ReportKey {
	return sha256.Sum256([]byte(fmt.Sprintf("%s:%d", flightID, dayBucket)))
}

// DayBucket returns whole days since the Unix epoch for an instant.
func DayBucket(t time.Time) int64 {
	return t.Unix() / 86_400
}

// FlightReport is the latest known status for a flight/date key.
// Later reports unconditionally supersede earlier ones; there is no
// append-only history.
type FlightReport struct {
	FlightID     string
	DayBucket    int64
	Status       FlightStatus
	DelayMinutes int64
	ReportedAt   time.Time
}

// ReportStore holds the latest report per key. Not thread-safe — only
// accessed from the single-threaded engine.
type ReportStore struct {
	reports map[ReportKey]*FlightReport
}

func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[ReportKey]*FlightReport),
	}
}

// Put overwrites (or creates) the report for its key. Last write wins.
func (rs *ReportStore) Put(r *FlightReport) ReportKey {
	key := NewReportKey(r.FlightID, r.DayBucket)
	rs.reports[key] = r
	return key
}

// Get returns the report for a key and whether one is present.
func (rs *ReportStore) Get(key ReportKey) (*FlightReport, bool) {
	r, ok := rs.reports[key]
	return r, ok
}

// Count returns the number of distinct keys reported.
func (rs *ReportStore) Count() int {
	return len(rs.reports)
}

// All returns every stored report. Used for snapshots.
func (rs *ReportStore) All() []*FlightReport {
	out := make([]*FlightReport, 0, len(rs.reports))
	for _, r := range rs.reports {
		out = append(out, r)
	}
	return out
}
