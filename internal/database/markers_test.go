package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// A second connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return service, cleanup
}

func TestReserveMarker_New(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	result, err := service.ReserveMarker(ctx, "tx1")
	if err != nil {
		t.Fatalf("ReserveMarker failed: %v", err)
	}

	if !result.NewlyReserved {
		t.Error("Expected NewlyReserved=true for first reservation")
	}
	if result.Marker.Outcome != models.MarkerReserved {
		t.Errorf("Expected outcome reserved, got %s", result.Marker.Outcome)
	}
}

func TestReserveMarker_Duplicate(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ReserveMarker(ctx, "tx1"); err != nil {
		t.Fatalf("First ReserveMarker failed: %v", err)
	}

	result, err := service.ReserveMarker(ctx, "tx1")
	if err != nil {
		t.Fatalf("Second ReserveMarker failed: %v", err)
	}
	if result.NewlyReserved {
		t.Error("Expected NewlyReserved=false for redelivered hash")
	}
	if result.Marker.Outcome != models.MarkerReserved {
		t.Errorf("Expected existing marker untouched, got outcome %s", result.Marker.Outcome)
	}
}

func TestAdvanceMarker_Sequence(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ReserveMarker(ctx, "tx1"); err != nil {
		t.Fatalf("ReserveMarker failed: %v", err)
	}

	if err := service.AdvanceMarker(ctx, "tx1", models.MarkerRefundSubmitted); err != nil {
		t.Fatalf("Advance to refund_submitted failed: %v", err)
	}
	if err := service.AdvanceMarker(ctx, "tx1", models.MarkerRefundConfirmed); err != nil {
		t.Fatalf("Advance to refund_confirmed failed: %v", err)
	}

	marker, err := service.GetMarker(ctx, "tx1")
	if err != nil {
		t.Fatalf("GetMarker failed: %v", err)
	}
	if marker.Outcome != models.MarkerRefundConfirmed {
		t.Errorf("Expected refund_confirmed, got %s", marker.Outcome)
	}
	if marker.Attempts != 2 {
		t.Errorf("Expected 2 attempts (reserve + submit), got %d", marker.Attempts)
	}
}

func TestAdvanceMarker_ConfirmedIsImmutable(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.ReserveMarker(ctx, "tx1"); err != nil {
		t.Fatalf("ReserveMarker failed: %v", err)
	}
	if err := service.AdvanceMarker(ctx, "tx1", models.MarkerRefundConfirmed); err != nil {
		t.Fatalf("Advance to refund_confirmed failed: %v", err)
	}

	err := service.AdvanceMarker(ctx, "tx1", models.MarkerRefundFailedTransient)
	if !errors.Is(err, store.ErrMarkerTerminal) {
		t.Errorf("Expected ErrMarkerTerminal, got %v", err)
	}
}

func TestAdvanceMarker_Missing(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	err := service.AdvanceMarker(context.Background(), "nope", models.MarkerRefundSubmitted)
	if !errors.Is(err, store.ErrMarkerNotFound) {
		t.Errorf("Expected ErrMarkerNotFound, got %v", err)
	}
}

func TestListRetryableMarkers(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for _, h := range []string{"tx1", "tx2", "tx3", "tx4"} {
		if _, err := service.ReserveMarker(ctx, h); err != nil {
			t.Fatalf("ReserveMarker(%s) failed: %v", h, err)
		}
	}
	if err := service.AdvanceMarker(ctx, "tx2", models.MarkerRefundFailedTransient); err != nil {
		t.Fatalf("AdvanceMarker failed: %v", err)
	}
	if err := service.AdvanceMarker(ctx, "tx3", models.MarkerRefundConfirmed); err != nil {
		t.Fatalf("AdvanceMarker failed: %v", err)
	}
	if err := service.AdvanceMarker(ctx, "tx4", models.MarkerRefundFailedPermanent); err != nil {
		t.Fatalf("AdvanceMarker failed: %v", err)
	}

	retryable, err := service.ListRetryableMarkers(ctx)
	if err != nil {
		t.Fatalf("ListRetryableMarkers failed: %v", err)
	}
	if len(retryable) != 2 {
		t.Fatalf("Expected 2 retryable markers, got %d", len(retryable))
	}
	seen := map[string]bool{}
	for _, m := range retryable {
		seen[m.TxHash] = true
	}
	if !seen["tx1"] || !seen["tx2"] {
		t.Errorf("Expected tx1 and tx2 retryable, got %v", seen)
	}
}
