package store

import (
	"context"
	"errors"
	"time"

	"collateral-refund-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrDepositNotFound      = errors.New("no deposit record found")
	ErrOwnerNotFound        = errors.New("no owner found")
	ErrRefundNotFound       = errors.New("no refund transaction found")
	ErrMarkerNotFound       = errors.New("no processed marker found")
	ErrCursorRegression     = errors.New("cursor may not move backwards")
	ErrMarkerTerminal       = errors.New("marker is in a terminal state")
)

// CreateDepositParams contains the parameters for creating a deposit record.
type CreateDepositParams struct {
	SenderAddress string
	OwnerId       string
	Amount        decimal.Decimal
	DepositTxHash string // empty for proactively-created signup records
	Verified      bool
	Flagged       bool
	FlagReason    string
}

// ReserveResult reports the outcome of an atomic marker check-and-insert.
type ReserveResult struct {
	NewlyReserved bool
	Marker        *models.ProcessedMarker
}

// EngineStore defines the contract every persistence backend must satisfy.
// Mutations that must be atomic (marker reservation, refund + deposit write)
// are atomic within a single call.
type EngineStore interface {
	// --- Owners ---
	CreateOwner(ctx context.Context, handle string, placeholder bool) (*models.Owner, error)
	GetOwner(ctx context.Context, ownerId string) (*models.Owner, error)

	// --- Deposit records ---
	CreateDepositRecord(ctx context.Context, params CreateDepositParams) (*models.DepositRecord, error)
	GetDepositByTxHash(ctx context.Context, txHash string) (*models.DepositRecord, error)
	// GetPendingDepositBySender returns the sender's unverified, unrefunded
	// record, or nil when none exists.
	GetPendingDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error)
	// GetOutstandingDepositBySender returns the sender's verified, unrefunded
	// record, or nil when none exists. At most one such record exists.
	GetOutstandingDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error)
	// GetOldestQueuedDepositBySender returns the sender's earliest queued
	// duplicate deposit, or nil when none is queued.
	GetOldestQueuedDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error)
	GetLatestDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error)
	MarkDepositVerified(ctx context.Context, depositId, txHash string) (*models.DepositRecord, error)
	// FlagDeposit holds an unrefunded deposit for review under the given
	// reason.
	FlagDeposit(ctx context.Context, depositId, reason string) error
	ListFlaggedDeposits(ctx context.Context) ([]models.DepositRecord, error)

	// --- Idempotency markers ---
	// ReserveMarker is an atomic check-and-insert on the transaction hash.
	// Only NewlyReserved=true permits proceeding to refund issuance.
	ReserveMarker(ctx context.Context, txHash string) (*ReserveResult, error)
	AdvanceMarker(ctx context.Context, txHash string, outcome models.MarkerOutcome) error
	GetMarker(ctx context.Context, txHash string) (*models.ProcessedMarker, error)
	ListRetryableMarkers(ctx context.Context) ([]models.ProcessedMarker, error)
	ListMarkersByOutcome(ctx context.Context, outcome models.MarkerOutcome) ([]models.ProcessedMarker, error)

	// --- Cursor ---
	// GetCursor returns nil when no cursor has been persisted yet.
	GetCursor(ctx context.Context) (*models.Cursor, error)
	// AdvanceCursor persists the new position. Moving block time backwards
	// returns ErrCursorRegression.
	AdvanceCursor(ctx context.Context, position string, blockTime time.Time) error

	// --- Refund transactions ---
	// RecordRefund writes the RefundTransaction and flips the deposit to
	// refunded=true in one database transaction. Neither is ever persisted
	// without the other.
	RecordRefund(ctx context.Context, depositId string, refund *models.RefundTransaction) error
	GetRefundByDepositHash(ctx context.Context, depositTxHash string) (*models.RefundTransaction, error)
	// GetPendingRefundByDestination returns the destination's in-flight
	// refund, or nil when none is pending.
	GetPendingRefundByDestination(ctx context.Context, destination string) (*models.RefundTransaction, error)
	ListPendingRefunds(ctx context.Context) ([]models.RefundTransaction, error)
	// ConfirmRefund advances a pending refund to confirmed and its marker to
	// refund_confirmed. Confirmed refunds are never reverted.
	ConfirmRefund(ctx context.Context, txHash string, confirmations int64) error
	UpdateRefundConfirmations(ctx context.Context, txHash string, confirmations int64) error

	// --- Lifecycle ---
	Close()
}
