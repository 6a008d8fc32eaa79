package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) CreateDepositRecord(ctx context.Context, params store.CreateDepositParams) (*models.DepositRecord, error) {
	depositId := uuid.New().String()

	zap.L().Info("Creating deposit record",
		zap.String("id", depositId),
		zap.String("sender", params.SenderAddress),
		zap.String("amount", params.Amount.String()),
		zap.String("deposit_tx_hash", params.DepositTxHash),
		zap.Bool("verified", params.Verified),
		zap.Bool("flagged", params.Flagged))

	_, err := s.db.ExecContext(ctx, queryInsertDeposit,
		depositId, params.SenderAddress, params.OwnerId, params.Amount.String(),
		params.DepositTxHash, params.Verified, params.Flagged, params.FlagReason,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: deposit for sender %s", store.ErrDuplicateTransaction, params.SenderAddress)
		}
		zap.L().Error("Failed to insert deposit record",
			zap.String("sender", params.SenderAddress),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert deposit record: %w", err)
	}

	return s.getDepositById(ctx, depositId)
}

func (s *Service) getDepositById(ctx context.Context, depositId string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetDepositById, depositId)
	record, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrDepositNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query deposit record: %w", err)
	}
	return record, nil
}

func (s *Service) GetDepositByTxHash(ctx context.Context, txHash string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetDepositByTxHash, txHash)
	record, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query deposit by tx hash: %w", err)
	}
	return record, nil
}

func (s *Service) GetPendingDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetPendingDepositBySender, sender)
	record, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query pending deposit: %w", err)
	}
	return record, nil
}

func (s *Service) GetOutstandingDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetOutstandingDepositBySender, sender)
	record, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query outstanding deposit: %w", err)
	}
	return record, nil
}

// GetOldestQueuedDepositBySender returns the sender's earliest queued
// duplicate deposit. Queued deposits are promoted in arrival order.
func (s *Service) GetOldestQueuedDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetOldestQueuedDepositBySender, sender, models.FlagReasonDuplicatePending)
	record, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query queued deposit: %w", err)
	}
	return record, nil
}

func (s *Service) GetLatestDepositBySender(ctx context.Context, sender string) (*models.DepositRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetLatestDepositBySender, sender)
	record, err := scanDeposit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query latest deposit: %w", err)
	}
	return record, nil
}

func (s *Service) MarkDepositVerified(ctx context.Context, depositId, txHash string) (*models.DepositRecord, error) {
	result, err := s.db.ExecContext(ctx, queryMarkDepositVerified, txHash, depositId)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: tx hash %s", store.ErrDuplicateTransaction, txHash)
		}
		return nil, fmt.Errorf("unable to mark deposit verified: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrDepositNotFound
	}

	zap.L().Info("Deposit verified",
		zap.String("deposit_id", depositId),
		zap.String("tx_hash", txHash))
	return s.getDepositById(ctx, depositId)
}

// FlagDeposit holds an unrefunded deposit for review under the given reason.
func (s *Service) FlagDeposit(ctx context.Context, depositId, reason string) error {
	result, err := s.db.ExecContext(ctx, queryFlagDeposit, reason, depositId)
	if err != nil {
		return fmt.Errorf("unable to flag deposit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrDepositNotFound
	}

	zap.L().Info("Deposit flagged for review",
		zap.String("deposit_id", depositId),
		zap.String("reason", reason))
	return nil
}

func (s *Service) ListFlaggedDeposits(ctx context.Context) ([]models.DepositRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryListFlaggedDeposits)
	if err != nil {
		return nil, fmt.Errorf("unable to query flagged deposits: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var records []models.DepositRecord
	for rows.Next() {
		record, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan deposit row: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit rows: %w", err)
	}
	return records, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row rowScanner) (*models.DepositRecord, error) {
	var record models.DepositRecord
	var amountStr string
	var refundedAt sql.NullTime

	err := row.Scan(
		&record.Id, &record.SenderAddress, &record.OwnerId, &amountStr,
		&record.DepositTxHash, &record.Verified, &record.Refunded,
		&record.Flagged, &record.FlagReason, &record.RefundTxHash,
		&refundedAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse deposit amount %q: %w", amountStr, err)
	}
	if refundedAt.Valid {
		record.RefundedAt = refundedAt.Time
	}
	return &record, nil
}

// isUniqueViolation reports whether the sqlite error is a unique-constraint
// failure. The driver does not export a typed error for this, so match the
// message the way the extension documents it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
