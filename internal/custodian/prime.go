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

package custodian

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/prime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// withdrawalNamespace seeds the deterministic idempotency key derivation. The
// key for a given deposit hash is stable across restarts, so Prime rejects a
// duplicate withdrawal if the process crashed between submission and the
// database write.
var withdrawalNamespace = uuid.MustParse("7b1c3c62-9a4e-4f1a-8f0e-2d5c6b8e4a01")

// PrimeSubmitter issues refunds as Prime wallet withdrawals. Like the signing
// backend it serializes submissions so concurrent attempts never race over
// the custodial wallet balance.
type PrimeSubmitter struct {
	service          *prime.Service
	portfolioId      string
	walletId         string
	asset            string
	minConfirmations int64

	mu sync.Mutex
}

func NewPrimeSubmitter(service *prime.Service, portfolioId, walletId, asset string, minConfirmations int64) *PrimeSubmitter {
	return &PrimeSubmitter{
		service:          service,
		portfolioId:      portfolioId,
		walletId:         walletId,
		asset:            asset,
		minConfirmations: minConfirmations,
	}
}

// RefundIdempotencyKey derives the stable withdrawal idempotency key for a
// deposit transaction hash.
func RefundIdempotencyKey(depositTxHash string) string {
	return uuid.NewSHA1(withdrawalNamespace, []byte(depositTxHash)).String()
}

func (s *PrimeSubmitter) SubmitRefund(ctx context.Context, deposit *models.DepositRecord) (*models.RefundTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idempotencyKey := RefundIdempotencyKey(deposit.DepositTxHash)

	zap.L().Info("Submitting refund withdrawal",
		zap.String("deposit_tx_hash", deposit.DepositTxHash),
		zap.String("destination", deposit.SenderAddress),
		zap.String("amount", deposit.Amount.String()),
		zap.String("idempotency_key", idempotencyKey))

	withdrawal, err := s.service.CreateWithdrawal(ctx, prime.CreateWithdrawalParams{
		PortfolioId:        s.portfolioId,
		WalletId:           s.walletId,
		DestinationAddress: deposit.SenderAddress,
		Amount:             deposit.Amount.String(),
		Asset:              s.asset,
		IdempotencyKey:     idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("refund withdrawal failed: %w", err)
	}

	// The on-chain hash is not known until the withdrawal settles. The
	// activity id identifies the refund until reconciliation observes the
	// outbound transaction.
	return &models.RefundTransaction{
		TxHash:        withdrawal.ActivityId,
		DepositTxHash: deposit.DepositTxHash,
		Destination:   deposit.SenderAddress,
		Amount:        deposit.Amount,
		Status:        models.RefundStatusPending,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// Confirmations locates the withdrawal in the wallet transaction feed by
// matching the refund's activity id or idempotency key. Prime reports import
// status rather than raw confirmation counts, so a completed withdrawal maps
// onto the deployment's confirmation requirement.
func (s *PrimeSubmitter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	txs, err := s.service.ListWalletTransactions(ctx, s.portfolioId, s.walletId, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("unable to query withdrawal status: %w", err)
	}

	for _, tx := range txs {
		if tx.Type != "WITHDRAWAL" {
			continue
		}
		if tx.Id != txHash && tx.TransactionId != txHash && tx.IdempotencyKey != txHash {
			continue
		}
		switch tx.Status {
		case "TRANSACTION_DONE", "TRANSACTION_IMPORTED":
			return s.minConfirmations, nil
		default:
			return 0, nil
		}
	}
	return 0, nil
}
