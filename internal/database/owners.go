package database

import (
	"context"
	"database/sql"
	"fmt"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) CreateOwner(ctx context.Context, handle string, placeholder bool) (*models.Owner, error) {
	ownerId := uuid.New().String()

	owner := &models.Owner{}
	err := s.db.QueryRowContext(ctx, queryInsertOwner, ownerId, handle, placeholder).Scan(
		&owner.Id, &owner.Handle, &owner.Placeholder, &owner.CreatedAt, &owner.UpdatedAt,
	)
	if err != nil {
		zap.L().Error("Failed to insert owner",
			zap.String("handle", handle),
			zap.Bool("placeholder", placeholder),
			zap.Error(err))
		return nil, fmt.Errorf("unable to insert owner: %w", err)
	}

	zap.L().Info("Owner created",
		zap.String("id", ownerId),
		zap.String("handle", handle),
		zap.Bool("placeholder", placeholder))
	return owner, nil
}

func (s *Service) GetOwner(ctx context.Context, ownerId string) (*models.Owner, error) {
	owner := &models.Owner{}
	err := s.db.QueryRowContext(ctx, queryGetOwnerById, ownerId).Scan(
		&owner.Id, &owner.Handle, &owner.Placeholder, &owner.CreatedAt, &owner.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query owner: %w", err)
	}
	return owner, nil
}
