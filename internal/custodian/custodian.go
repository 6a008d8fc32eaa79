package custodian

import (
	"context"

	"collateral-refund-go/internal/models"
)

// Submitter builds, signs, and submits one outbound refund transaction for a
// verified, unrefunded deposit, paying the received amount back to the
// original sender. SubmitRefund returns as soon as the network accepts the
// submission; the returned refund is pending and confirmation is tracked by
// the reconciliation loop.
//
// Implementations serialize all access to the custodial key and its spendable
// balance so concurrent refund attempts never race over the same funds, and
// derive their provider idempotency token from the deposit transaction hash
// so a resubmission after a crash cannot pay twice.
type Submitter interface {
	SubmitRefund(ctx context.Context, deposit *models.DepositRecord) (*models.RefundTransaction, error)

	// Confirmations reports the current confirmation count for a submitted
	// refund transaction.
	Confirmations(ctx context.Context, txHash string) (int64, error)
}
