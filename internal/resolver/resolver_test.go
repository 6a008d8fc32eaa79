package resolver

import (
	"context"
	"testing"
	"time"

	"collateral-refund-go/internal/database"
	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupResolver(t *testing.T) (*Resolver, store.EngineStore) {
	t.Helper()

	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return NewResolver(svc, decimal.RequireFromString("1.5")), svc
}

func indexedTx(sender, hash, amount string) models.IndexedTransaction {
	return models.IndexedTransaction{
		TxHash:        hash,
		SenderAddress: sender,
		Amount:        decimal.RequireFromString(amount),
		BlockTime:     time.Now().UTC(),
		Confirmations: 6,
	}
}

func TestResolveUnknownSenderSynthesizesOwner(t *testing.T) {
	r, s := setupResolver(t)
	ctx := context.Background()

	record, res, err := r.Resolve(ctx, indexedTx("addr-1", "tx-1", "1.5"))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.True(t, record.Verified)
	require.NotEmpty(t, record.OwnerId)

	owner, err := s.GetOwner(ctx, record.OwnerId)
	require.NoError(t, err)
	assert.True(t, owner.Placeholder)
	assert.Equal(t, "addr-1", owner.Handle)
}

func TestResolveVerifiesPendingSignupRecord(t *testing.T) {
	r, s := setupResolver(t)
	ctx := context.Background()

	owner, err := s.CreateOwner(ctx, "alice", false)
	require.NoError(t, err)
	pending, err := s.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: "addr-2",
		OwnerId:       owner.Id,
		Amount:        decimal.RequireFromString("1.5"),
	})
	require.NoError(t, err)

	record, res, err := r.Resolve(ctx, indexedTx("addr-2", "tx-2", "1.5"))
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, pending.Id, record.Id)
	assert.Equal(t, owner.Id, record.OwnerId)
	assert.Equal(t, "tx-2", record.DepositTxHash)
	assert.True(t, record.Verified)
}

func TestResolveAmountMismatchHeldForReview(t *testing.T) {
	r, s := setupResolver(t)
	ctx := context.Background()

	record, res, err := r.Resolve(ctx, indexedTx("addr-3", "tx-3", "1.4"))
	require.NoError(t, err)
	assert.True(t, res.FlaggedAmount)
	assert.False(t, res.Verified)
	assert.False(t, record.Verified)
	assert.True(t, record.Flagged)
	assert.Equal(t, models.FlagReasonAmountMismatch, record.FlagReason)

	flagged, err := s.ListFlaggedDeposits(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "tx-3", flagged[0].DepositTxHash)
}

func TestResolveSecondDepositQueuedBehindOutstanding(t *testing.T) {
	r, s := setupResolver(t)
	ctx := context.Background()

	first, res, err := r.Resolve(ctx, indexedTx("addr-4", "tx-4a", "1.5"))
	require.NoError(t, err)
	require.True(t, res.Verified)

	second, res, err := r.Resolve(ctx, indexedTx("addr-4", "tx-4b", "1.5"))
	require.NoError(t, err)
	assert.True(t, res.QueuedDuplicate)
	assert.False(t, second.Verified)
	assert.Equal(t, models.FlagReasonDuplicatePending, second.FlagReason)
	assert.Equal(t, first.OwnerId, second.OwnerId)

	// The outstanding record is untouched.
	outstanding, err := s.GetOutstandingDepositBySender(ctx, "addr-4")
	require.NoError(t, err)
	require.NotNil(t, outstanding)
	assert.Equal(t, "tx-4a", outstanding.DepositTxHash)
}

func TestBlockingDepositReturnsOldestQueued(t *testing.T) {
	r, s := setupResolver(t)
	ctx := context.Background()

	owner, err := s.CreateOwner(ctx, "addr-6", true)
	require.NoError(t, err)
	older, err := s.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: "addr-6",
		OwnerId:       owner.Id,
		Amount:        decimal.RequireFromString("1.5"),
		DepositTxHash: "tx-6a",
		Flagged:       true,
		FlagReason:    models.FlagReasonDuplicatePending,
	})
	require.NoError(t, err)
	_, err = s.CreateDepositRecord(ctx, store.CreateDepositParams{
		SenderAddress: "addr-6",
		OwnerId:       owner.Id,
		Amount:        decimal.RequireFromString("1.5"),
		DepositTxHash: "tx-6b",
		Flagged:       true,
		FlagReason:    models.FlagReasonDuplicatePending,
	})
	require.NoError(t, err)

	// Queued deposits drain in arrival order.
	blocking, err := r.BlockingDeposit(ctx, "addr-6")
	require.NoError(t, err)
	require.NotNil(t, blocking)
	assert.Equal(t, older.Id, blocking.Id)
}

func TestResolveExcessAmountFlaggedNotPartiallyRefunded(t *testing.T) {
	r, _ := setupResolver(t)

	record, res, err := r.Resolve(context.Background(), indexedTx("addr-5", "tx-5", "3.0"))
	require.NoError(t, err)
	assert.True(t, res.FlaggedAmount)
	assert.True(t, record.Flagged)
	assert.True(t, record.Amount.Equal(decimal.RequireFromString("3.0")))
}
