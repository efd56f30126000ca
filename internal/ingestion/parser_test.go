package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Kizaaaa/insurix/internal/ingestion"
	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/state"
)

func rawFromJSON(t *testing.T, kind string, v interface{}) ingestion.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawMessage{
		Subject:   "test",
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseFlightReport(t *testing.T) {
	payload := map[string]interface{}{
		"message_id":    "feed-msg-8841",
		"reporter":      "550e8400-e29b-41d4-a716-446655440000",
		"flight_id":     "VN123",
		"day_bucket":    int64(20500),
		"status":        "delayed",
		"delay_minutes": int64(240),
	}

	raw := rawFromJSON(t, ingestion.KindFlightReport, payload)
	oper, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	report, ok := oper.(*op.ReportFlightStatus)
	if !ok {
		t.Fatalf("expected *op.ReportFlightStatus, got %T", oper)
	}

	if report.IdempotencyKey() != "feed-msg-8841" {
		t.Errorf("idempotency key must be the feed message id, got %q", report.IdempotencyKey())
	}
	if report.FlightID != "VN123" {
		t.Errorf("flight_id: got %s, want VN123", report.FlightID)
	}
	if report.DayBucket != 20500 {
		t.Errorf("day_bucket: got %d, want 20500", report.DayBucket)
	}
	if report.Status != state.FlightStatusDelayed {
		t.Errorf("status: got %s, want Delayed", report.Status)
	}
	if report.DelayMinutes != 240 {
		t.Errorf("delay_minutes: got %d, want 240", report.DelayMinutes)
	}
}

func TestParseFlightReport_MissingMessageIDRejected(t *testing.T) {
	payload := map[string]interface{}{
		"reporter":  "550e8400-e29b-41d4-a716-446655440000",
		"flight_id": "VN123",
		"status":    "on_time",
	}

	raw := rawFromJSON(t, ingestion.KindFlightReport, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("missing message_id must fail")
	}
}

func TestParseFlightReport_UnknownStatusRejected(t *testing.T) {
	payload := map[string]interface{}{
		"message_id": "feed-msg-1",
		"reporter":   "550e8400-e29b-41d4-a716-446655440000",
		"flight_id":  "VN123",
		"status":     "diverted",
	}

	raw := rawFromJSON(t, ingestion.KindFlightReport, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("unknown status must fail")
	}
}

func TestParseFlightReportBatch(t *testing.T) {
	payload := map[string]interface{}{
		"message_id": "feed-batch-17",
		"reporter":   "550e8400-e29b-41d4-a716-446655440000",
		"reports": []map[string]interface{}{
			{"flight_id": "VN1", "day_bucket": int64(20500), "status": "on_time", "delay_minutes": int64(0)},
			{"flight_id": "VN2", "day_bucket": int64(20500), "status": "delayed", "delay_minutes": int64(300)},
			{"flight_id": "VN3", "day_bucket": int64(20501), "status": "cancelled", "delay_minutes": int64(0)},
		},
	}

	raw := rawFromJSON(t, ingestion.KindFlightReportBatch, payload)
	oper, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	batch, ok := oper.(*op.BatchReportFlightStatus)
	if !ok {
		t.Fatalf("expected *op.BatchReportFlightStatus, got %T", oper)
	}

	if len(batch.FlightIDs) != 3 || len(batch.Statuses) != 3 {
		t.Fatalf("expected 3 parallel entries, got %d/%d", len(batch.FlightIDs), len(batch.Statuses))
	}
	if batch.Statuses[2] != state.FlightStatusCancelled {
		t.Errorf("report 2 status: got %s, want Cancelled", batch.Statuses[2])
	}
	if batch.DelayMinutes[1] != 300 {
		t.Errorf("report 1 delay: got %d, want 300", batch.DelayMinutes[1])
	}
}

func TestParseFlightReportBatch_BadEntryFailsWhole(t *testing.T) {
	payload := map[string]interface{}{
		"message_id": "feed-batch-18",
		"reporter":   "550e8400-e29b-41d4-a716-446655440000",
		"reports": []map[string]interface{}{
			{"flight_id": "VN1", "day_bucket": int64(20500), "status": "on_time"},
			{"flight_id": "VN2", "day_bucket": int64(20500), "status": "teleported"},
		},
	}

	raw := rawFromJSON(t, ingestion.KindFlightReportBatch, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("a bad entry must fail the whole batch")
	}
}

func TestParseDirectDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"party":      "660e8400-e29b-41d4-a716-446655440001",
		"amount":     int64(250_000),
	}

	raw := rawFromJSON(t, ingestion.KindDirectDeposit, payload)
	oper, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fund, ok := oper.(*op.FundReserve)
	if !ok {
		t.Fatalf("expected *op.FundReserve, got %T", oper)
	}

	if !fund.AllowAnyFunder {
		t.Error("direct deposit must be accepted from any party")
	}
	if fund.Amount != 250_000 {
		t.Errorf("amount: got %d, want 250000", fund.Amount)
	}
	if fund.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key must be the deposit id, got %q", fund.IdempotencyKey())
	}
}

func TestParseRawMessage_UnknownKindRejected(t *testing.T) {
	raw := ingestion.RawMessage{Kind: "Telemetry", Data: []byte("{}")}
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("unknown kind must fail")
	}
}
