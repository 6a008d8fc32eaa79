package engine

import (
	"context"
	"sync"
	"time"

	"collateral-refund-go/internal/models"
)

// fakeIndexer serves whatever batch the test loaded, ignoring the cursor.
type fakeIndexer struct {
	mu  sync.Mutex
	txs []models.IndexedTransaction
	err error
}

func (f *fakeIndexer) FetchSince(ctx context.Context, cursor *models.Cursor) ([]models.IndexedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.IndexedTransaction, len(f.txs))
	copy(out, f.txs)
	return out, nil
}

func (f *fakeIndexer) set(txs ...models.IndexedTransaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = txs
}

// fakeSubmitter records submissions and pops one scripted error per call.
type fakeSubmitter struct {
	mu            sync.Mutex
	errs          []error
	submitted     []models.DepositRecord
	confirmations map[string]int64
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{confirmations: map[string]int64{}}
}

func (f *fakeSubmitter) SubmitRefund(ctx context.Context, deposit *models.DepositRecord) (*models.RefundTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	f.submitted = append(f.submitted, *deposit)
	return &models.RefundTransaction{
		TxHash:        "refund-" + deposit.DepositTxHash,
		DepositTxHash: deposit.DepositTxHash,
		Destination:   deposit.SenderAddress,
		Amount:        deposit.Amount,
		Status:        models.RefundStatusPending,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

func (f *fakeSubmitter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmations[txHash], nil
}

func (f *fakeSubmitter) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeSubmitter) failNextWith(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
}

func (f *fakeSubmitter) setConfirmations(txHash string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations[txHash] = n
}

// fakeAudit records mirror calls and optionally fails them.
type fakeAudit struct {
	mu       sync.Mutex
	err      error
	mirrored []string
}

func (f *fakeAudit) MirrorRefund(ctx context.Context, deposit *models.DepositRecord, refund *models.RefundTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.mirrored = append(f.mirrored, deposit.DepositTxHash)
	return nil
}
