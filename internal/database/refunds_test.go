package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"github.com/shopspring/decimal"
)

func createVerifiedDeposit(t *testing.T, service *Service, sender, txHash string) *models.DepositRecord {
	t.Helper()
	ctx := context.Background()

	record, err := service.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: sender,
		Amount:        decimal.RequireFromString("0.05"),
		DepositTxHash: txHash,
		Verified:      true,
	})
	if err != nil {
		t.Fatalf("CreateDepositRecord failed: %v", err)
	}
	if _, err := service.ReserveMarker(ctx, txHash); err != nil {
		t.Fatalf("ReserveMarker failed: %v", err)
	}
	return record
}

func TestRecordRefund_AtomicUnit(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	record := createVerifiedDeposit(t, service, "sender1", "dep1")

	refund := &models.RefundTransaction{
		TxHash:        "ref1",
		DepositTxHash: "dep1",
		Destination:   "sender1",
		Amount:        decimal.RequireFromString("0.05"),
	}
	if err := service.RecordRefund(ctx, record.Id, refund); err != nil {
		t.Fatalf("RecordRefund failed: %v", err)
	}

	// Deposit flipped to refunded with the refund hash attached.
	updated, err := service.GetDepositByTxHash(ctx, "dep1")
	if err != nil {
		t.Fatalf("GetDepositByTxHash failed: %v", err)
	}
	if !updated.Refunded {
		t.Error("Expected deposit refunded=true")
	}
	if updated.RefundTxHash != "ref1" {
		t.Errorf("Expected refund_tx_hash ref1, got %s", updated.RefundTxHash)
	}
	if updated.RefundedAt.IsZero() {
		t.Error("Expected refund timestamp set")
	}

	// Refund row persisted as pending.
	stored, err := service.GetRefundByDepositHash(ctx, "dep1")
	if err != nil {
		t.Fatalf("GetRefundByDepositHash failed: %v", err)
	}
	if stored == nil || stored.Status != models.RefundStatusPending {
		t.Fatalf("Expected pending refund, got %+v", stored)
	}

	// Marker advanced to refund_submitted in the same unit.
	marker, err := service.GetMarker(ctx, "dep1")
	if err != nil {
		t.Fatalf("GetMarker failed: %v", err)
	}
	if marker.Outcome != models.MarkerRefundSubmitted {
		t.Errorf("Expected marker refund_submitted, got %s", marker.Outcome)
	}
}

func TestRecordRefund_DuplicateDepositHash(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	record := createVerifiedDeposit(t, service, "sender1", "dep1")

	refund := &models.RefundTransaction{
		TxHash:        "ref1",
		DepositTxHash: "dep1",
		Destination:   "sender1",
		Amount:        decimal.RequireFromString("0.05"),
	}
	if err := service.RecordRefund(ctx, record.Id, refund); err != nil {
		t.Fatalf("RecordRefund failed: %v", err)
	}

	second := &models.RefundTransaction{
		TxHash:        "ref2",
		DepositTxHash: "dep1",
		Destination:   "sender1",
		Amount:        decimal.RequireFromString("0.05"),
	}
	err := service.RecordRefund(ctx, record.Id, second)
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}

	// The failed attempt must not have touched the first refund.
	stored, err := service.GetRefundByDepositHash(ctx, "dep1")
	if err != nil {
		t.Fatalf("GetRefundByDepositHash failed: %v", err)
	}
	if stored.TxHash != "ref1" {
		t.Errorf("Expected original refund ref1, got %s", stored.TxHash)
	}
}

func TestConfirmRefund(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	record := createVerifiedDeposit(t, service, "sender1", "dep1")

	refund := &models.RefundTransaction{
		TxHash:        "ref1",
		DepositTxHash: "dep1",
		Destination:   "sender1",
		Amount:        decimal.RequireFromString("0.05"),
	}
	if err := service.RecordRefund(ctx, record.Id, refund); err != nil {
		t.Fatalf("RecordRefund failed: %v", err)
	}

	if err := service.ConfirmRefund(ctx, "ref1", 6); err != nil {
		t.Fatalf("ConfirmRefund failed: %v", err)
	}

	stored, err := service.GetRefundByDepositHash(ctx, "dep1")
	if err != nil {
		t.Fatalf("GetRefundByDepositHash failed: %v", err)
	}
	if stored.Status != models.RefundStatusConfirmed {
		t.Errorf("Expected confirmed, got %s", stored.Status)
	}
	if stored.Confirmations != 6 {
		t.Errorf("Expected 6 confirmations, got %d", stored.Confirmations)
	}

	marker, err := service.GetMarker(ctx, "dep1")
	if err != nil {
		t.Fatalf("GetMarker failed: %v", err)
	}
	if marker.Outcome != models.MarkerRefundConfirmed {
		t.Errorf("Expected marker refund_confirmed, got %s", marker.Outcome)
	}

	// Confirming again is a no-op, never a revert.
	if err := service.ConfirmRefund(ctx, "ref1", 10); err != nil {
		t.Fatalf("Second ConfirmRefund failed: %v", err)
	}
	stored, _ = service.GetRefundByDepositHash(ctx, "dep1")
	if stored.Confirmations != 6 {
		t.Errorf("Expected confirmations unchanged at 6, got %d", stored.Confirmations)
	}
}

func TestListPendingRefunds(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	r1 := createVerifiedDeposit(t, service, "sender1", "dep1")
	r2 := createVerifiedDeposit(t, service, "sender2", "dep2")

	for i, rec := range []*models.DepositRecord{r1, r2} {
		refund := &models.RefundTransaction{
			TxHash:        []string{"ref1", "ref2"}[i],
			DepositTxHash: rec.DepositTxHash,
			Destination:   rec.SenderAddress,
			Amount:        rec.Amount,
		}
		if err := service.RecordRefund(ctx, rec.Id, refund); err != nil {
			t.Fatalf("RecordRefund failed: %v", err)
		}
	}
	if err := service.ConfirmRefund(ctx, "ref1", 6); err != nil {
		t.Fatalf("ConfirmRefund failed: %v", err)
	}

	pending, err := service.ListPendingRefunds(ctx)
	if err != nil {
		t.Fatalf("ListPendingRefunds failed: %v", err)
	}
	if len(pending) != 1 || pending[0].TxHash != "ref2" {
		t.Fatalf("Expected only ref2 pending, got %+v", pending)
	}
}

func TestAdvanceCursor_Monotonic(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := service.AdvanceCursor(ctx, "tx10", base); err != nil {
		t.Fatalf("AdvanceCursor failed: %v", err)
	}

	cursor, err := service.GetCursor(ctx)
	if err != nil {
		t.Fatalf("GetCursor failed: %v", err)
	}
	if cursor == nil || cursor.Position != "tx10" {
		t.Fatalf("Expected cursor at tx10, got %+v", cursor)
	}

	// Same block time is allowed (boundary redelivery).
	if err := service.AdvanceCursor(ctx, "tx11", base); err != nil {
		t.Fatalf("AdvanceCursor at same time failed: %v", err)
	}

	// Moving backwards is not.
	err = service.AdvanceCursor(ctx, "tx9", base.Add(-time.Minute))
	if !errors.Is(err, store.ErrCursorRegression) {
		t.Errorf("Expected ErrCursorRegression, got %v", err)
	}

	cursor, _ = service.GetCursor(ctx)
	if cursor.Position != "tx11" {
		t.Errorf("Expected cursor still at tx11, got %s", cursor.Position)
	}
}

func TestCreateDepositRecord_OutstandingUnique(t *testing.T) {
	service, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	createVerifiedDeposit(t, service, "sender1", "dep1")

	// A second verified, unrefunded deposit for the same sender violates the
	// at-most-one invariant.
	_, err := service.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: "sender1",
		Amount:        decimal.RequireFromString("0.05"),
		DepositTxHash: "dep2",
		Verified:      true,
	})
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}

	// An unverified queued record is fine.
	_, err = service.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: "sender1",
		Amount:        decimal.RequireFromString("0.05"),
		DepositTxHash: "dep3",
		Flagged:       true,
		FlagReason:    models.FlagReasonDuplicatePending,
	})
	if err != nil {
		t.Fatalf("Queued duplicate deposit failed: %v", err)
	}
}
