package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus tracks an outbound refund transaction on the external ledger.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusConfirmed RefundStatus = "confirmed"
	RefundStatusFailed    RefundStatus = "failed"
)

// RefundTransaction is the append-only record of an outbound refund payment.
// One-to-one with a DepositRecord at the point refunded=true is set; the two
// are written in the same database transaction.
type RefundTransaction struct {
	TxHash        string          `db:"tx_hash"`
	DepositTxHash string          `db:"deposit_tx_hash"`
	Destination   string          `db:"destination"`
	Amount        decimal.Decimal `db:"amount"`
	Status        RefundStatus    `db:"status"`
	Confirmations int64           `db:"confirmations"`
	SubmittedAt   time.Time       `db:"submitted_at"`
	ConfirmedAt   time.Time       `db:"confirmed_at"`
}
