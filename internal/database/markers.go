package database

import (
	"context"
	"database/sql"
	"fmt"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"go.uber.org/zap"
)

// ReserveMarker atomically check-and-inserts a marker for the transaction
// hash. The insert either takes the row (newly reserved) or hits the primary
// key and leaves the existing marker untouched.
func (s *Service) ReserveMarker(ctx context.Context, txHash string) (*store.ReserveResult, error) {
	result, err := s.db.ExecContext(ctx, queryReserveMarker, txHash, models.MarkerReserved)
	if err != nil {
		return nil, fmt.Errorf("unable to reserve marker: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to read rows affected: %w", err)
	}

	marker, err := s.GetMarker(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if affected == 1 {
		zap.L().Debug("Marker newly reserved", zap.String("tx_hash", txHash))
		return &store.ReserveResult{NewlyReserved: true, Marker: marker}, nil
	}
	return &store.ReserveResult{NewlyReserved: false, Marker: marker}, nil
}

func (s *Service) GetMarker(ctx context.Context, txHash string) (*models.ProcessedMarker, error) {
	var marker models.ProcessedMarker
	err := s.db.QueryRowContext(ctx, queryGetMarker, txHash).Scan(
		&marker.TxHash, &marker.Outcome, &marker.Attempts, &marker.CreatedAt, &marker.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrMarkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query marker: %w", err)
	}
	return &marker, nil
}

// AdvanceMarker moves a marker to the given outcome. Terminal markers
// (refund_confirmed, refund_failed_permanent) are immutable and the update
// returns ErrMarkerTerminal.
func (s *Service) AdvanceMarker(ctx context.Context, txHash string, outcome models.MarkerOutcome) error {
	return advanceMarkerExec(ctx, s.db, txHash, outcome)
}

// execer covers *sql.DB and *sql.Tx so marker advancement can participate in
// the refund-recording transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func advanceMarkerExec(ctx context.Context, db execer, txHash string, outcome models.MarkerOutcome) error {
	// A submission, successful or transiently failed, consumes an attempt.
	// Retry backoff scales off this count.
	attemptDelta := 0
	if outcome == models.MarkerRefundSubmitted || outcome == models.MarkerRefundFailedTransient {
		attemptDelta = 1
	}

	result, err := db.ExecContext(ctx, queryAdvanceMarker,
		outcome, attemptDelta, txHash,
		models.MarkerRefundConfirmed, models.MarkerRefundFailedPermanent,
	)
	if err != nil {
		return fmt.Errorf("unable to advance marker: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the marker does not exist or it is already terminal.
		var existing string
		err := queryMarkerOutcome(ctx, db, txHash, &existing)
		if err == sql.ErrNoRows {
			return store.ErrMarkerNotFound
		}
		if err != nil {
			return fmt.Errorf("unable to query marker outcome: %w", err)
		}
		return fmt.Errorf("%w: %s is %s", store.ErrMarkerTerminal, txHash, existing)
	}

	zap.L().Debug("Marker advanced",
		zap.String("tx_hash", txHash),
		zap.String("outcome", string(outcome)))
	return nil
}

// queryMarkerOutcome reads just the outcome column through either a db or tx.
func queryMarkerOutcome(ctx context.Context, db execer, txHash string, out *string) error {
	type querier interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	}
	q, ok := db.(querier)
	if !ok {
		return sql.ErrNoRows
	}
	return q.QueryRowContext(ctx, `SELECT outcome FROM processed_markers WHERE tx_hash = ?`, txHash).Scan(out)
}

func (s *Service) ListMarkersByOutcome(ctx context.Context, outcome models.MarkerOutcome) ([]models.ProcessedMarker, error) {
	return s.listMarkers(ctx, queryListMarkersByOutcome, outcome)
}

// ListRetryableMarkers returns markers left in reserved or
// refund_failed_transient, the states eligible for another refund attempt.
func (s *Service) ListRetryableMarkers(ctx context.Context) ([]models.ProcessedMarker, error) {
	return s.listMarkers(ctx, queryListRetryableMarkers,
		models.MarkerReserved, models.MarkerRefundFailedTransient)
}

func (s *Service) listMarkers(ctx context.Context, query string, args ...any) ([]models.ProcessedMarker, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query markers: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var markers []models.ProcessedMarker
	for rows.Next() {
		var marker models.ProcessedMarker
		if err := rows.Scan(&marker.TxHash, &marker.Outcome, &marker.Attempts, &marker.CreatedAt, &marker.UpdatedAt); err != nil {
			return nil, fmt.Errorf("unable to scan marker row: %w", err)
		}
		markers = append(markers, marker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating marker rows: %w", err)
	}
	return markers, nil
}
