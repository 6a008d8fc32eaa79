package proofs

import (
	"context"

	"collateral-refund-go/internal/models"

	"go.uber.org/zap"
)

// Capability produces and checks deposit proofs, attestations that a deposit
// was received and its refund issued. Proof handling is strictly best-effort:
// a failure here never blocks or delays the refund itself.
type Capability interface {
	// Generate produces a proof for a refunded deposit. Implementations
	// return an opaque token suitable for external verification.
	Generate(ctx context.Context, deposit *models.DepositRecord, refund *models.RefundTransaction) (string, error)

	// Verify checks a previously generated proof against the deposit it
	// claims to attest.
	Verify(ctx context.Context, deposit *models.DepositRecord, proof string) (bool, error)
}

// Noop satisfies Capability without producing proofs. It is the default when
// no attestation backend is configured.
type Noop struct{}

func (Noop) Generate(ctx context.Context, deposit *models.DepositRecord, refund *models.RefundTransaction) (string, error) {
	zap.L().Debug("Proof generation skipped, no attestation backend configured",
		zap.String("deposit_tx_hash", deposit.DepositTxHash))
	return "", nil
}

func (Noop) Verify(ctx context.Context, deposit *models.DepositRecord, proof string) (bool, error) {
	return proof == "", nil
}
