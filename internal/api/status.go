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

package api

import (
	"context"
	"fmt"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"
)

// StatusService answers user and operator queries over the deposit store.
// It exposes status only; retry mechanics stay internal to the engine.
type StatusService struct {
	store store.EngineStore
}

func NewStatusService(engineStore store.EngineStore) *StatusService {
	return &StatusService{store: engineStore}
}

// GetDepositStatus reports the current state of a sender's most recent
// deposit.
func (s *StatusService) GetDepositStatus(ctx context.Context, senderAddress string) (*models.DepositStatus, error) {
	deposit, err := s.store.GetLatestDepositBySender(ctx, senderAddress)
	if err != nil {
		return nil, fmt.Errorf("unable to query deposit: %w", err)
	}
	if deposit == nil {
		return nil, store.ErrDepositNotFound
	}

	status := &models.DepositStatus{
		SenderAddress: deposit.SenderAddress,
		Amount:        deposit.Amount,
		DepositTxHash: deposit.DepositTxHash,
		Verified:      deposit.Verified,
		Refunded:      deposit.Refunded,
		RefundTxHash:  deposit.RefundTxHash,
		RefundedAt:    deposit.RefundedAt,
		HeldForReview: deposit.Flagged && deposit.FlagReason == models.FlagReasonAmountMismatch,
	}

	if deposit.Refunded && deposit.DepositTxHash != "" {
		refund, err := s.store.GetRefundByDepositHash(ctx, deposit.DepositTxHash)
		if err != nil {
			return nil, fmt.Errorf("unable to query refund: %w", err)
		}
		if refund != nil {
			status.RefundStatus = string(refund.Status)
		}
	}
	return status, nil
}

// ListReviewItems returns the deposits held for manual review, oldest first.
func (s *StatusService) ListReviewItems(ctx context.Context) ([]models.ReviewItem, error) {
	flagged, err := s.store.ListFlaggedDeposits(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to list flagged deposits: %w", err)
	}

	items := make([]models.ReviewItem, 0, len(flagged))
	for _, deposit := range flagged {
		items = append(items, models.ReviewItem{
			SenderAddress: deposit.SenderAddress,
			DepositTxHash: deposit.DepositTxHash,
			Amount:        deposit.Amount,
			Reason:        deposit.FlagReason,
			ObservedAt:    deposit.CreatedAt,
		})
	}
	return items, nil
}

// HealthCheck verifies the store is reachable.
func (s *StatusService) HealthCheck(ctx context.Context) error {
	if _, err := s.store.GetCursor(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
