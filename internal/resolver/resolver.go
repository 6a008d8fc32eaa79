package resolver

import (
	"context"
	"fmt"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Resolver attaches observed ledger deposits to deposit records. It decides
// whether a transaction verifies an expected signup record, synthesizes a
// placeholder owner for an unknown sender, or holds the deposit for review.
type Resolver struct {
	store         store.EngineStore
	depositAmount decimal.Decimal
}

// Resolution describes what Resolve did with the transaction.
type Resolution struct {
	// Verified is true when the deposit matched the required amount and is
	// now eligible for refund.
	Verified bool
	// FlaggedAmount is true when the transferred amount differed from the
	// required collateral amount and the record was held for review.
	FlaggedAmount bool
	// QueuedDuplicate is true when the sender already has an outstanding
	// deposit; the new transaction is recorded but held until the prior
	// refund settles.
	QueuedDuplicate bool
}

func NewResolver(engineStore store.EngineStore, depositAmount decimal.Decimal) *Resolver {
	return &Resolver{store: engineStore, depositAmount: depositAmount}
}

// Resolve maps an indexed transaction onto a deposit record. The rules, in
// order:
//
//  1. A sender with an outstanding verified deposit gets the new transaction
//     queued behind it rather than verified, preserving the one-outstanding-
//     deposit-per-sender invariant.
//  2. A sender with a pending signup record gets that record verified when
//     the amount matches exactly.
//  3. An unknown sender gets a placeholder owner synthesized so the deposit
//     is never orphaned.
//
// Any amount other than the exact required collateral holds the record for
// manual review instead of verifying it.
func (r *Resolver) Resolve(ctx context.Context, tx models.IndexedTransaction) (*models.DepositRecord, Resolution, error) {
	blocking, err := r.BlockingDeposit(ctx, tx.SenderAddress)
	if err != nil {
		return nil, Resolution{}, err
	}
	if blocking != nil {
		record, err := r.store.CreateDepositRecord(ctx, store.CreateDepositParams{
			SenderAddress: tx.SenderAddress,
			OwnerId:       blocking.OwnerId,
			Amount:        tx.Amount,
			DepositTxHash: tx.TxHash,
			Verified:      false,
			Flagged:       true,
			FlagReason:    models.FlagReasonDuplicatePending,
		})
		if err != nil {
			return nil, Resolution{}, fmt.Errorf("unable to queue duplicate deposit: %w", err)
		}
		zap.L().Warn("Sender already has a deposit in flight, queuing new transaction",
			zap.String("sender", tx.SenderAddress),
			zap.String("tx_hash", tx.TxHash),
			zap.String("blocking_tx_hash", blocking.DepositTxHash))
		return record, Resolution{QueuedDuplicate: true}, nil
	}

	if !tx.Amount.Equal(r.depositAmount) {
		return r.flagAmountMismatch(ctx, tx)
	}

	pending, err := r.store.GetPendingDepositBySender(ctx, tx.SenderAddress)
	if err != nil {
		return nil, Resolution{}, fmt.Errorf("unable to check pending deposits: %w", err)
	}
	if pending != nil {
		record, err := r.store.MarkDepositVerified(ctx, pending.Id, tx.TxHash)
		if err != nil {
			return nil, Resolution{}, fmt.Errorf("unable to verify pending deposit: %w", err)
		}
		zap.L().Info("Verified expected deposit",
			zap.String("sender", tx.SenderAddress),
			zap.String("tx_hash", tx.TxHash),
			zap.String("owner_id", record.OwnerId))
		return record, Resolution{Verified: true}, nil
	}

	owner, err := r.store.CreateOwner(ctx, tx.SenderAddress, true)
	if err != nil {
		return nil, Resolution{}, fmt.Errorf("unable to synthesize owner: %w", err)
	}
	record, err := r.store.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: tx.SenderAddress,
		OwnerId:       owner.Id,
		Amount:        tx.Amount,
		DepositTxHash: tx.TxHash,
		Verified:      true,
	})
	if err != nil {
		return nil, Resolution{}, fmt.Errorf("unable to create deposit record: %w", err)
	}

	zap.L().Info("Verified deposit from unknown sender with synthesized owner",
		zap.String("sender", tx.SenderAddress),
		zap.String("tx_hash", tx.TxHash),
		zap.String("owner_id", owner.Id))
	return record, Resolution{Verified: true}, nil
}

// BlockingDeposit returns the sender's deposit that blocks recognizing a new
// one, or nil when the sender is clear. A deposit blocks while it is verified
// and unrefunded, while it is itself queued, or while its refund has been
// submitted but not yet confirmed. One deposit per sender moves through the
// pipeline at a time, and queued deposits drain oldest first.
func (r *Resolver) BlockingDeposit(ctx context.Context, sender string) (*models.DepositRecord, error) {
	outstanding, err := r.store.GetOutstandingDepositBySender(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("unable to check outstanding deposits: %w", err)
	}
	if outstanding != nil {
		return outstanding, nil
	}

	refund, err := r.store.GetPendingRefundByDestination(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("unable to check pending refunds: %w", err)
	}
	if refund != nil {
		refunded, err := r.store.GetDepositByTxHash(ctx, refund.DepositTxHash)
		if err != nil {
			return nil, fmt.Errorf("unable to load refunded deposit: %w", err)
		}
		if refunded != nil {
			return refunded, nil
		}
	}

	queued, err := r.store.GetOldestQueuedDepositBySender(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("unable to check queued deposits: %w", err)
	}
	if queued != nil {
		return queued, nil
	}
	return nil, nil
}

func (r *Resolver) flagAmountMismatch(ctx context.Context, tx models.IndexedTransaction) (*models.DepositRecord, Resolution, error) {
	var ownerId string
	if pending, err := r.store.GetPendingDepositBySender(ctx, tx.SenderAddress); err != nil {
		return nil, Resolution{}, fmt.Errorf("unable to check pending deposits: %w", err)
	} else if pending != nil {
		ownerId = pending.OwnerId
	}

	record, err := r.store.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: tx.SenderAddress,
		OwnerId:       ownerId,
		Amount:        tx.Amount,
		DepositTxHash: tx.TxHash,
		Verified:      false,
		Flagged:       true,
		FlagReason:    models.FlagReasonAmountMismatch,
	})
	if err != nil {
		return nil, Resolution{}, fmt.Errorf("unable to flag deposit: %w", err)
	}

	zap.L().Warn("Deposit amount does not match required collateral, holding for review",
		zap.String("sender", tx.SenderAddress),
		zap.String("tx_hash", tx.TxHash),
		zap.String("amount", tx.Amount.String()),
		zap.String("required", r.depositAmount.String()))
	return record, Resolution{FlaggedAmount: true}, nil
}
