package indexer

import (
	"context"

	"collateral-refund-go/internal/models"
)

// Client queries an external chain-data provider for transactions paying the
// configured deposit address. Implementations must return transactions in
// block-time order and are not trusted to deduplicate: redelivery near the
// cursor boundary is expected and handled by the idempotency ledger.
//
// Any returned error is treated as transient by the orchestrator: the cursor
// is not advanced and the whole batch is retried next cycle.
type Client interface {
	// FetchSince returns all deposit-address transactions at or after the
	// cursor position. A nil cursor fetches from the beginning of history.
	FetchSince(ctx context.Context, cursor *models.Cursor) ([]models.IndexedTransaction, error)
}
