package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Owner represents a registration record that a deposit belongs to.
// Placeholder owners are synthesized by the resolver when a deposit arrives
// from a sender with no prior signup record.
type Owner struct {
	Id          string    `db:"id"`
	Handle      string    `db:"handle"`
	Placeholder bool      `db:"placeholder"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// DepositRecord represents one sender's outstanding collateral deposit.
// At most one verified, unrefunded record exists per sender address at a time.
// Records are never deleted; they are the audit trail.
type DepositRecord struct {
	Id            string          `db:"id"`
	SenderAddress string          `db:"sender_address"`
	OwnerId       string          `db:"owner_id"` // empty until an owner is attached
	Amount        decimal.Decimal `db:"amount"`
	DepositTxHash string          `db:"deposit_tx_hash"` // empty until observed on chain
	Verified      bool            `db:"verified"`
	Refunded      bool            `db:"refunded"`
	Flagged       bool            `db:"flagged"`
	FlagReason    string          `db:"flag_reason"`
	RefundTxHash  string          `db:"refund_tx_hash"`
	RefundedAt    time.Time       `db:"refunded_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Flag reasons recorded on deposits held for manual review.
const (
	FlagReasonAmountMismatch   = "amount_mismatch"
	FlagReasonDuplicatePending = "duplicate_pending"
)
