package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"go.uber.org/zap"
)

// GetCursor returns the persisted cursor, or nil if no poll cycle has
// completed yet.
func (s *Service) GetCursor(ctx context.Context) (*models.Cursor, error) {
	var cursor models.Cursor
	err := s.db.QueryRowContext(ctx, queryGetCursor).Scan(
		&cursor.Position, &cursor.BlockTime, &cursor.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query cursor: %w", err)
	}
	return &cursor, nil
}

// AdvanceCursor persists the new cursor position. The cursor is monotonically
// non-decreasing: moving block time backwards returns ErrCursorRegression.
func (s *Service) AdvanceCursor(ctx context.Context, position string, blockTime time.Time) error {
	current, err := s.GetCursor(ctx)
	if err != nil {
		return err
	}
	if current != nil && blockTime.Before(current.BlockTime) {
		return fmt.Errorf("%w: %s is before %s",
			store.ErrCursorRegression, blockTime.UTC(), current.BlockTime.UTC())
	}

	if _, err := s.db.ExecContext(ctx, queryUpsertCursor, position, blockTime.UTC()); err != nil {
		return fmt.Errorf("unable to advance cursor: %w", err)
	}

	zap.L().Debug("Cursor advanced",
		zap.String("position", position),
		zap.Time("block_time", blockTime))
	return nil
}
