package projection_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Kizaaaa/insurix/internal/op"
	"github.com/Kizaaaa/insurix/internal/projection"
	"github.com/Kizaaaa/insurix/internal/query"
	"github.com/Kizaaaa/insurix/internal/testutil"
)

// oracleOutput builds the projection input an oracle admin decision
// produces.
func oracleOutput(t *testing.T, notifType string, oracle uuid.UUID, sequence int64) projection.ProjectionOutput {
	t.Helper()
	payload, err := json.Marshal(op.OraclePayload{Oracle: oracle})
	if err != nil {
		t.Fatalf("marshal oracle payload: %v", err)
	}
	return projection.ProjectionOutput{
		Sequence:  sequence,
		Type:      notifType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ============================================================================
// Test: Oracle authorization projection
// ============================================================================

func TestProjection_OracleAuthorizeRevokeReadableViaQuery(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	oracle := uuid.New()
	inputChan := make(chan projection.ProjectionOutput, 4)
	worker := projection.NewProjectionWorker(db, inputChan, nil)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(context.Background())
	}()

	inputChan <- oracleOutput(t, "OracleAuthorized", oracle, 1)
	close(inputChan)
	if err := <-done; err != nil {
		t.Fatalf("projection worker: %v", err)
	}

	qs := query.NewQueryService(db)
	ctx := context.Background()

	got, err := qs.GetOracle(ctx, oracle.String())
	if err != nil {
		t.Fatalf("GetOracle after authorize: %v", err)
	}
	if !got.Authorized {
		t.Errorf("oracle should read as authorized after OracleAuthorized")
	}

	// Revocation flips the row rather than deleting it.
	inputChan2 := make(chan projection.ProjectionOutput, 4)
	worker2 := projection.NewProjectionWorker(db, inputChan2, nil)
	done2 := make(chan error, 1)
	go func() {
		done2 <- worker2.Run(context.Background())
	}()
	inputChan2 <- oracleOutput(t, "OracleRevoked", oracle, 2)
	close(inputChan2)
	if err := <-done2; err != nil {
		t.Fatalf("projection worker: %v", err)
	}

	got, err = qs.GetOracle(ctx, oracle.String())
	if err != nil {
		t.Fatalf("GetOracle after revoke: %v", err)
	}
	if got.Authorized {
		t.Errorf("oracle should read as revoked, got authorized")
	}

	list, err := qs.ListOracles(ctx)
	if err != nil {
		t.Fatalf("ListOracles: %v", err)
	}
	found := false
	for _, o := range list.Oracles {
		if o.Oracle == oracle.String() {
			found = true
			if o.Authorized {
				t.Errorf("listed oracle should be revoked")
			}
		}
	}
	if !found {
		t.Errorf("revoked oracle missing from list")
	}
}

func TestQuery_UnknownOracleIsNotFound(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	qs := query.NewQueryService(db)
	_, err := qs.GetOracle(context.Background(), uuid.New().String())
	if !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for never-authorized oracle, got %v", err)
	}
}
