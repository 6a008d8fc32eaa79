package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/prime"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PrimeIndexer adapts the Prime wallet-transaction feed to the Client
// contract. Prime does not report raw confirmation counts, so the import
// status is mapped onto the deployment's confirmation policy: an imported
// deposit is final, a pending import has zero confirmations.
type PrimeIndexer struct {
	service          *prime.Service
	portfolioId      string
	walletId         string
	depositAddress   string
	minConfirmations int64
}

func NewPrimeIndexer(service *prime.Service, portfolioId, walletId, depositAddress string, minConfirmations int64) *PrimeIndexer {
	return &PrimeIndexer{
		service:          service,
		portfolioId:      portfolioId,
		walletId:         walletId,
		depositAddress:   depositAddress,
		minConfirmations: minConfirmations,
	}
}

func (p *PrimeIndexer) FetchSince(ctx context.Context, cursor *models.Cursor) ([]models.IndexedTransaction, error) {
	var since time.Time
	if cursor != nil {
		since = cursor.BlockTime.UTC()
	}

	walletTxs, err := p.service.ListWalletTransactions(ctx, p.portfolioId, p.walletId, since)
	if err != nil {
		return nil, fmt.Errorf("prime indexer fetch failed: %w", err)
	}

	var txs []models.IndexedTransaction
	for _, tx := range walletTxs {
		if tx.Type != "DEPOSIT" {
			continue
		}
		if p.depositAddress != "" && !strings.EqualFold(tx.ToAddress, p.depositAddress) {
			continue
		}

		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			zap.L().Warn("Skipping deposit with unparseable amount",
				zap.String("transaction_id", tx.Id),
				zap.String("amount", tx.Amount))
			continue
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		var confirmations int64
		switch tx.Status {
		case "TRANSACTION_IMPORTED", "TRANSACTION_DONE":
			confirmations = p.minConfirmations
		case "TRANSACTION_IMPORT_PENDING":
			confirmations = 0
		default:
			zap.L().Debug("Skipping deposit with unhandled status",
				zap.String("transaction_id", tx.Id),
				zap.String("status", tx.Status))
			continue
		}

		blockTime := tx.Completed
		if blockTime.IsZero() {
			blockTime = tx.Created
		}

		txHash := tx.TransactionId
		if txHash == "" {
			txHash = tx.Id
		}

		txs = append(txs, models.IndexedTransaction{
			TxHash:        txHash,
			SenderAddress: tx.FromAddress,
			Amount:        amount,
			BlockTime:     blockTime,
			Confirmations: confirmations,
		})
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].BlockTime.Before(txs[j].BlockTime)
	})
	return txs, nil
}
