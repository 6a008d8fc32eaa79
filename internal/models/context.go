package models

import (
	"context"
	"time"
)

type refundContextKey struct{}

// RefundContext carries supplementary observation data for a deposit through
// context so store and audit backends can record it as metadata without
// widening their interfaces.
type RefundContext struct {
	DepositTxHash string
	SenderAddress string
	Network       string
	BlockTime     time.Time
	Confirmations int64
	ObservedAt    time.Time
}

// WithRefundContext attaches deposit observation data to a context.
func WithRefundContext(ctx context.Context, rc *RefundContext) context.Context {
	return context.WithValue(ctx, refundContextKey{}, rc)
}

// GetRefundContext retrieves deposit observation data from context, or nil if absent.
func GetRefundContext(ctx context.Context) *RefundContext {
	rc, _ := ctx.Value(refundContextKey{}).(*RefundContext)
	return rc
}
