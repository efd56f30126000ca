package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/state"
	"github.com/google/uuid"
)

// Operation kinds carried by feed subjects.
const (
	KindFlightReport      = "FlightReport"
	KindFlightReportBatch = "FlightReportBatch"
	KindDirectDeposit     = "DirectDeposit"
)

// ParseRawMessage converts a RawMessage into a typed operation. The feed
// message id becomes the idempotency key, so JetStream redeliveries are
// recognized by the engine and safely ACKed.
func ParseRawMessage(raw RawMessage) (op.Operation, error) {
	switch raw.Kind {
	case KindFlightReport:
		return parseFlightReport(raw.Data)
	case KindFlightReportBatch:
		return parseFlightReportBatch(raw.Data)
	case KindDirectDeposit:
		return parseDirectDeposit(raw.Data)
	default:
		return nil, fmt.Errorf("unknown message kind: %s", raw.Kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type flightReportJSON struct {
	MessageID    string `json:"message_id"`
	Reporter     string `json:"reporter"`
	FlightID     string `json:"flight_id"`
	DayBucket    int64  `json:"day_bucket"`
	Status       string `json:"status"`
	DelayMinutes int64  `json:"delay_minutes"`
}

func parseFlightReport(data []byte) (*op.ReportFlightStatus, error) {
	var j flightReportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FlightReport: %w", err)
	}

	if j.MessageID == "" {
		return nil, fmt.Errorf("parse FlightReport: missing message_id")
	}
	reporter, err := uuid.Parse(j.Reporter)
	if err != nil {
		return nil, fmt.Errorf("parse reporter: %w", err)
	}
	status, err := state.ParseFlightStatus(j.Status)
	if err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}

	return &op.ReportFlightStatus{
		MessageID:    j.MessageID,
		Reporter:     reporter,
		FlightID:     j.FlightID,
		DayBucket:    j.DayBucket,
		Status:       status,
		DelayMinutes: j.DelayMinutes,
	}, nil
}

type flightReportEntryJSON struct {
	FlightID     string `json:"flight_id"`
	DayBucket    int64  `json:"day_bucket"`
	Status       string `json:"status"`
	DelayMinutes int64  `json:"delay_minutes"`
}

type flightReportBatchJSON struct {
	MessageID string                  `json:"message_id"`
	Reporter  string                  `json:"reporter"`
	Reports   []flightReportEntryJSON `json:"reports"`
}

func parseFlightReportBatch(data []byte) (*op.BatchReportFlightStatus, error) {
	var j flightReportBatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FlightReportBatch: %w", err)
	}

	if j.MessageID == "" {
		return nil, fmt.Errorf("parse FlightReportBatch: missing message_id")
	}
	reporter, err := uuid.Parse(j.Reporter)
	if err != nil {
		return nil, fmt.Errorf("parse reporter: %w", err)
	}

	batch := &op.BatchReportFlightStatus{
		MessageID:    j.MessageID,
		Reporter:     reporter,
		FlightIDs:    make([]string, 0, len(j.Reports)),
		DayBuckets:   make([]int64, 0, len(j.Reports)),
		Statuses:     make([]state.FlightStatus, 0, len(j.Reports)),
		DelayMinutes: make([]int64, 0, len(j.Reports)),
	}

	for i, entry := range j.Reports {
		status, err := state.ParseFlightStatus(entry.Status)
		if err != nil {
			return nil, fmt.Errorf("parse report %d status: %w", i, err)
		}
		batch.FlightIDs = append(batch.FlightIDs, entry.FlightID)
		batch.DayBuckets = append(batch.DayBuckets, entry.DayBucket)
		batch.Statuses = append(batch.Statuses, status)
		batch.DelayMinutes = append(batch.DelayMinutes, entry.DelayMinutes)
	}

	return batch, nil
}

type directDepositJSON struct {
	DepositID string `json:"deposit_id"`
	Party     string `json:"party"`
	Amount    int64  `json:"amount"`
}

// parseDirectDeposit converts an untagged inbound transfer into a reserve
// funding operation. Any party may deposit; the value swells the pool.
func parseDirectDeposit(data []byte) (*op.FundReserve, error) {
	var j directDepositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DirectDeposit: %w", err)
	}

	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	party, err := uuid.Parse(j.Party)
	if err != nil {
		return nil, fmt.Errorf("parse party: %w", err)
	}

	return &op.FundReserve{
		RequestID:      depositID,
		Funder:         party,
		Amount:         j.Amount,
		AllowAnyFunder: true,
	}, nil
}
