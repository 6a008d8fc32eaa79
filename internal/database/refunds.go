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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordRefund writes the refund transaction, flips the deposit record to
// refunded=true, and advances the idempotency marker to refund_submitted, all
// in one database transaction. Together the refund row and the deposit flags
// are the only proof that funds moved, so one is never persisted without the
// other.
func (s *Service) RecordRefund(ctx context.Context, depositId string, refund *models.RefundTransaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			zap.L().Warn("Failed to rollback refund transaction", zap.Error(err))
		}
	}()

	submittedAt := refund.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, queryInsertRefund,
		refund.TxHash, refund.DepositTxHash, refund.Destination,
		refund.Amount.String(), models.RefundStatusPending, refund.Confirmations, submittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: refund for deposit %s", store.ErrDuplicateTransaction, refund.DepositTxHash)
		}
		return fmt.Errorf("unable to insert refund transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryMarkDepositRefunded,
		refund.TxHash, submittedAt, depositId,
	)
	if err != nil {
		return fmt.Errorf("unable to mark deposit refunded: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: deposit %s is not verified and unrefunded", store.ErrDepositNotFound, depositId)
	}

	if err := advanceMarkerExec(ctx, tx, refund.DepositTxHash, models.MarkerRefundSubmitted); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit refund transaction: %w", err)
	}

	zap.L().Info("Refund recorded",
		zap.String("refund_tx_hash", refund.TxHash),
		zap.String("deposit_tx_hash", refund.DepositTxHash),
		zap.String("destination", refund.Destination),
		zap.String("amount", refund.Amount.String()))
	return nil
}

func (s *Service) GetRefundByDepositHash(ctx context.Context, depositTxHash string) (*models.RefundTransaction, error) {
	row := s.db.QueryRowContext(ctx, queryGetRefundByDepositHash, depositTxHash)
	refund, err := scanRefund(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query refund by deposit hash: %w", err)
	}
	return refund, nil
}

func (s *Service) GetPendingRefundByDestination(ctx context.Context, destination string) (*models.RefundTransaction, error) {
	row := s.db.QueryRowContext(ctx, queryGetPendingRefundByDestination, destination)
	refund, err := scanRefund(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query pending refund by destination: %w", err)
	}
	return refund, nil
}

func (s *Service) ListPendingRefunds(ctx context.Context) ([]models.RefundTransaction, error) {
	rows, err := s.db.QueryContext(ctx, queryListPendingRefunds)
	if err != nil {
		return nil, fmt.Errorf("unable to query pending refunds: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var refunds []models.RefundTransaction
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan refund row: %w", err)
		}
		refunds = append(refunds, *refund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refund rows: %w", err)
	}
	return refunds, nil
}

// ConfirmRefund advances a pending refund to confirmed and its marker to
// refund_confirmed. A confirmed refund is never reverted; calling this twice
// is a no-op.
func (s *Service) ConfirmRefund(ctx context.Context, txHash string, confirmations int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			zap.L().Warn("Failed to rollback confirm transaction", zap.Error(err))
		}
	}()

	var depositTxHash string
	err = tx.QueryRowContext(ctx, queryGetRefundDepositHash, txHash).Scan(&depositTxHash)
	if err == sql.ErrNoRows {
		return store.ErrRefundNotFound
	}
	if err != nil {
		return fmt.Errorf("unable to query refund: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryConfirmRefund, confirmations, time.Now().UTC(), txHash)
	if err != nil {
		return fmt.Errorf("unable to confirm refund: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected == 0 {
		// Already confirmed (or failed); nothing to do.
		return tx.Commit()
	}

	if err := advanceMarkerExec(ctx, tx, depositTxHash, models.MarkerRefundConfirmed); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("unable to commit confirm transaction: %w", err)
	}

	zap.L().Info("Refund confirmed",
		zap.String("refund_tx_hash", txHash),
		zap.String("deposit_tx_hash", depositTxHash),
		zap.Int64("confirmations", confirmations))
	return nil
}

func (s *Service) UpdateRefundConfirmations(ctx context.Context, txHash string, confirmations int64) error {
	if _, err := s.db.ExecContext(ctx, queryUpdateRefundConfirmations, confirmations, txHash); err != nil {
		return fmt.Errorf("unable to update refund confirmations: %w", err)
	}
	return nil
}

func scanRefund(row rowScanner) (*models.RefundTransaction, error) {
	var refund models.RefundTransaction
	var amountStr string
	var confirmedAt sql.NullTime

	err := row.Scan(
		&refund.TxHash, &refund.DepositTxHash, &refund.Destination,
		&amountStr, &refund.Status, &refund.Confirmations,
		&refund.SubmittedAt, &confirmedAt,
	)
	if err != nil {
		return nil, err
	}

	refund.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse refund amount %q: %w", amountStr, err)
	}
	if confirmedAt.Valid {
		refund.ConfirmedAt = confirmedAt.Time
	}
	return &refund, nil
}
