/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package engine

import (
	"context"
	"fmt"
	"time"

	"collateral-refund-go/internal/custodian"
	"collateral-refund-go/internal/models"

	"go.uber.org/zap"
)

// poll fetches transactions past the cursor and processes them in block-time
// order. The cursor advances only past the prefix of the batch whose
// transactions are settled: either handled to completion or persisted in a
// state the retry backlog can resume from. The first immature or failed
// transaction holds the cursor so it is redelivered next cycle.
func (e *Engine) poll(ctx context.Context) error {
	cursor, err := e.store.GetCursor(ctx)
	if err != nil {
		return fmt.Errorf("unable to load cursor: %w", err)
	}

	txs, err := e.indexer.FetchSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("unable to fetch transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil
	}

	zap.L().Debug("Fetched transaction batch", zap.Int("count", len(txs)))

	var lastSettled *models.IndexedTransaction
	for i := range txs {
		settled, err := e.processTransaction(ctx, txs[i])
		if err != nil {
			zap.L().Error("Transaction processing failed, holding cursor",
				zap.String("tx_hash", txs[i].TxHash),
				zap.Error(err))
			break
		}
		if !settled {
			break
		}
		lastSettled = &txs[i]
	}

	if lastSettled != nil {
		if err := e.store.AdvanceCursor(ctx, lastSettled.TxHash, lastSettled.BlockTime); err != nil {
			return fmt.Errorf("unable to advance cursor: %w", err)
		}
	}
	return nil
}

// processTransaction handles one indexed transaction. It returns true when
// the transaction is settled from the cursor's point of view, meaning the
// cursor may advance past it without losing work.
func (e *Engine) processTransaction(ctx context.Context, tx models.IndexedTransaction) (bool, error) {
	if tx.Confirmations < e.cfg.MinConfirmations {
		zap.L().Debug("Transaction below confirmation threshold, holding cursor",
			zap.String("tx_hash", tx.TxHash),
			zap.Int64("confirmations", tx.Confirmations),
			zap.Int64("required", e.cfg.MinConfirmations))
		return false, nil
	}

	reserved, err := e.store.ReserveMarker(ctx, tx.TxHash)
	if err != nil {
		return false, err
	}

	if !reserved.NewlyReserved {
		if reserved.Marker.Outcome.Terminal() || reserved.Marker.Outcome == models.MarkerRefundSubmitted {
			return true, nil
		}
		// Retryable redelivery. If the deposit record exists the retry
		// backlog owns it; otherwise the previous run crashed between
		// reserving the marker and resolving, so resolve now.
		deposit, err := e.store.GetDepositByTxHash(ctx, tx.TxHash)
		if err != nil {
			return false, err
		}
		if deposit != nil {
			return true, nil
		}
	}

	deposit, err := e.store.GetDepositByTxHash(ctx, tx.TxHash)
	if err != nil {
		return false, err
	}
	if deposit == nil {
		record, resolution, err := e.resolver.Resolve(ctx, tx)
		if err != nil {
			return false, err
		}
		deposit = record

		switch {
		case resolution.QueuedDuplicate:
			if err := e.store.AdvanceMarker(ctx, tx.TxHash, models.MarkerRefundFailedTransient); err != nil {
				return false, err
			}
			return true, nil
		case resolution.FlaggedAmount:
			if err := e.store.AdvanceMarker(ctx, tx.TxHash, models.MarkerRefundFailedPermanent); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	ctx = models.WithRefundContext(ctx, &models.RefundContext{
		DepositTxHash: tx.TxHash,
		SenderAddress: tx.SenderAddress,
		BlockTime:     tx.BlockTime,
		Confirmations: tx.Confirmations,
		ObservedAt:    time.Now().UTC(),
	})

	if !deposit.Verified {
		// Resolved on a previous run but held for review or queued.
		outcome := models.MarkerRefundFailedPermanent
		if deposit.FlagReason == models.FlagReasonDuplicatePending {
			outcome = models.MarkerRefundFailedTransient
		}
		if err := e.store.AdvanceMarker(ctx, tx.TxHash, outcome); err != nil {
			return false, err
		}
		return true, nil
	}

	return e.issueRefund(ctx, deposit)
}

// issueRefund submits the refund and records it atomically with the deposit
// flip and the marker advance. A submission failure is classified and
// persisted on the marker; the transaction is still settled for the cursor
// because the backlog resumes it.
func (e *Engine) issueRefund(ctx context.Context, deposit *models.DepositRecord) (bool, error) {
	refund, err := e.submitter.SubmitRefund(ctx, deposit)
	if err != nil {
		e.handleSubmitFailure(ctx, deposit, err)
		return true, nil
	}

	if err := e.store.RecordRefund(ctx, deposit.Id, refund); err != nil {
		// The refund went out but the write failed. The marker stays
		// retryable and resubmission dedupes at the provider via the
		// deterministic idempotency token, so hold the cursor and retry.
		zap.L().Error("Refund submitted but recording failed",
			zap.String("deposit_tx_hash", deposit.DepositTxHash),
			zap.String("refund_tx_hash", refund.TxHash),
			zap.Error(err))
		return false, err
	}

	zap.L().Info("Refund issued",
		zap.String("deposit_tx_hash", deposit.DepositTxHash),
		zap.String("refund_tx_hash", refund.TxHash),
		zap.String("destination", refund.Destination),
		zap.String("amount", refund.Amount.String()))

	e.mirrorRefund(ctx, deposit, refund)

	if _, err := e.prover.Generate(ctx, deposit, refund); err != nil {
		zap.L().Warn("Proof generation failed",
			zap.String("deposit_tx_hash", deposit.DepositTxHash),
			zap.Error(err))
	}

	return true, nil
}

func (e *Engine) mirrorRefund(ctx context.Context, deposit *models.DepositRecord, refund *models.RefundTransaction) {
	if e.audit == nil {
		return
	}
	if err := e.audit.MirrorRefund(ctx, deposit, refund); err != nil {
		zap.L().Warn("Audit mirror write failed",
			zap.String("deposit_tx_hash", deposit.DepositTxHash),
			zap.Error(err))
	}
}

// handleSubmitFailure classifies a submission error and moves the marker to
// the matching failure state.
func (e *Engine) handleSubmitFailure(ctx context.Context, deposit *models.DepositRecord, submitErr error) {
	txHash := deposit.DepositTxHash

	switch custodian.Classify(submitErr) {
	case custodian.ClassFatal:
		zap.L().Error("Refund failed permanently, operator attention required",
			zap.String("deposit_tx_hash", txHash),
			zap.Error(submitErr))
		e.advanceMarkerLogged(ctx, txHash, models.MarkerRefundFailedPermanent)

	case custodian.ClassFunding:
		zap.L().Error("Custodial balance cannot cover refund, operator attention required",
			zap.String("deposit_tx_hash", txHash),
			zap.String("amount", deposit.Amount.String()),
			zap.Error(submitErr))
		if e.cfg.FundingRetryCap > 0 {
			if marker, err := e.store.GetMarker(ctx, txHash); err == nil && marker.Attempts >= e.cfg.FundingRetryCap {
				zap.L().Error("Funding retry cap reached, marking refund failed permanently",
					zap.String("deposit_tx_hash", txHash),
					zap.Int("attempts", marker.Attempts))
				e.advanceMarkerLogged(ctx, txHash, models.MarkerRefundFailedPermanent)
				return
			}
		}
		e.advanceMarkerLogged(ctx, txHash, models.MarkerRefundFailedTransient)

	default:
		zap.L().Warn("Refund failed transiently, will retry",
			zap.String("deposit_tx_hash", txHash),
			zap.Error(submitErr))
		e.advanceMarkerLogged(ctx, txHash, models.MarkerRefundFailedTransient)
	}
}

func (e *Engine) advanceMarkerLogged(ctx context.Context, txHash string, outcome models.MarkerOutcome) {
	if err := e.store.AdvanceMarker(ctx, txHash, outcome); err != nil {
		zap.L().Error("Unable to advance marker",
			zap.String("tx_hash", txHash),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}

// retrySweep walks the retryable marker backlog and reattempts refunds whose
// backoff has elapsed. Queued duplicates are promoted once the sender's prior
// refund has settled.
func (e *Engine) retrySweep(ctx context.Context) {
	markers, err := e.store.ListRetryableMarkers(ctx)
	if err != nil {
		zap.L().Error("Unable to list retryable markers", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, marker := range markers {
		if marker.Outcome == models.MarkerRefundFailedTransient {
			if now.Sub(marker.UpdatedAt) < retryDelay(e.cfg, marker.Attempts-1) {
				continue
			}
		}

		deposit, err := e.store.GetDepositByTxHash(ctx, marker.TxHash)
		if err != nil {
			zap.L().Error("Unable to load deposit for retry",
				zap.String("tx_hash", marker.TxHash),
				zap.Error(err))
			continue
		}
		if deposit == nil || deposit.Refunded {
			// No deposit means the poller still owns this hash; a refunded
			// deposit means the marker already advanced.
			continue
		}

		if !deposit.Verified {
			if deposit.FlagReason == models.FlagReasonDuplicatePending {
				e.promoteQueuedDuplicate(ctx, deposit)
			}
			continue
		}

		zap.L().Info("Retrying refund",
			zap.String("deposit_tx_hash", marker.TxHash),
			zap.Int("attempts", marker.Attempts))
		if _, err := e.issueRefund(ctx, deposit); err != nil {
			zap.L().Error("Refund retry failed",
				zap.String("deposit_tx_hash", marker.TxHash),
				zap.Error(err))
		}
	}
}

// promoteQueuedDuplicate verifies a deposit that was queued behind the
// sender's previous outstanding deposit, once that refund has settled.
func (e *Engine) promoteQueuedDuplicate(ctx context.Context, deposit *models.DepositRecord) {
	blocking, err := e.resolver.BlockingDeposit(ctx, deposit.SenderAddress)
	if err != nil {
		zap.L().Error("Unable to check blocking deposit for promotion",
			zap.String("sender", deposit.SenderAddress),
			zap.Error(err))
		return
	}
	if blocking != nil && blocking.Id != deposit.Id {
		return
	}

	if !deposit.Amount.Equal(e.cfg.DepositAmount) {
		zap.L().Warn("Queued deposit has wrong amount, holding for review",
			zap.String("deposit_tx_hash", deposit.DepositTxHash),
			zap.String("amount", deposit.Amount.String()))
		if err := e.store.FlagDeposit(ctx, deposit.Id, models.FlagReasonAmountMismatch); err != nil {
			zap.L().Error("Unable to reflag queued deposit",
				zap.String("deposit_tx_hash", deposit.DepositTxHash),
				zap.Error(err))
		}
		e.advanceMarkerLogged(ctx, deposit.DepositTxHash, models.MarkerRefundFailedPermanent)
		return
	}

	verified, err := e.store.MarkDepositVerified(ctx, deposit.Id, deposit.DepositTxHash)
	if err != nil {
		zap.L().Error("Unable to promote queued deposit",
			zap.String("deposit_tx_hash", deposit.DepositTxHash),
			zap.Error(err))
		return
	}

	zap.L().Info("Promoted queued deposit after prior refund settled",
		zap.String("sender", deposit.SenderAddress),
		zap.String("deposit_tx_hash", deposit.DepositTxHash))
	if _, err := e.issueRefund(ctx, verified); err != nil {
		zap.L().Error("Refund of promoted deposit failed",
			zap.String("deposit_tx_hash", deposit.DepositTxHash),
			zap.Error(err))
	}
}

// reconcile advances pending refunds toward confirmation by querying the
// ledger for their current confirmation counts.
func (e *Engine) reconcile(ctx context.Context) {
	refunds, err := e.store.ListPendingRefunds(ctx)
	if err != nil {
		zap.L().Error("Unable to list pending refunds", zap.Error(err))
		return
	}

	for _, refund := range refunds {
		confirmations, err := e.submitter.Confirmations(ctx, refund.TxHash)
		if err != nil {
			zap.L().Warn("Unable to query refund confirmations",
				zap.String("refund_tx_hash", refund.TxHash),
				zap.Error(err))
			continue
		}

		if confirmations >= e.cfg.MinConfirmations {
			if err := e.store.ConfirmRefund(ctx, refund.TxHash, confirmations); err != nil {
				zap.L().Error("Unable to confirm refund",
					zap.String("refund_tx_hash", refund.TxHash),
					zap.Error(err))
				continue
			}
			zap.L().Info("Refund confirmed",
				zap.String("refund_tx_hash", refund.TxHash),
				zap.String("destination", refund.Destination),
				zap.Int64("confirmations", confirmations))
		} else if confirmations != refund.Confirmations {
			if err := e.store.UpdateRefundConfirmations(ctx, refund.TxHash, confirmations); err != nil {
				zap.L().Warn("Unable to update refund confirmations",
					zap.String("refund_tx_hash", refund.TxHash),
					zap.Error(err))
			}
		}
	}
}
