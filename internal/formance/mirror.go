package formance

import (
	"context"
	"errors"
	"fmt"

	"collateral-refund-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// assetPrecision maps collateral asset symbols to their decimal precision.
var assetPrecision = map[string]int{
	"USD":  2,
	"USDC": 6,
	"USDT": 6,
	"BTC":  8,
	"ETH":  18,
	"SOL":  9,
}

// numscriptRefundRoundTrip records one recognized deposit and its refund as a
// single transaction with two postings: world -> custody (the deposit landing)
// and custody -> world (the refund going back out). Net custody impact is
// zero; the ledger keeps the full audit trail in metadata.
const numscriptRefundRoundTrip = `vars {
  asset $asset
  number $amount
  string $deposit_tx_hash
  string $refund_tx_hash
  string $sender_address
  string $owner_id
}

send [$asset $amount] (
  source = @world
  destination = @collateral:custody
)

send [$asset $amount] (
  source = @collateral:custody
  destination = @world
)

set_tx_meta("event_type", "deposit_refunded")
set_tx_meta("deposit_tx_hash", $deposit_tx_hash)
set_tx_meta("refund_tx_hash", $refund_tx_hash)
set_tx_meta("sender_address", $sender_address)
set_tx_meta("owner_id", $owner_id)
`

// Mirror writes recognized deposits and their refunds into a Formance Stack
// ledger for audit. It never sits on the refund path; callers treat every
// error as a warning.
type Mirror struct {
	client *v3.Formance
	ledger string
	symbol string
}

// NewMirror connects to the stack and creates the ledger if it does not
// already exist.
func NewMirror(ctx context.Context, cfg models.FormanceConfig, symbol string) (*Mirror, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "collateral-refund"
	}
	if symbol == "" {
		symbol = "USDC"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	m := &Mirror{client: client, ledger: cfg.LedgerName, symbol: symbol}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance audit mirror initialized", zap.String("ledger", cfg.LedgerName))
	return m, nil
}

func (m *Mirror) ensureLedger(ctx context.Context) error {
	_, err := m.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "collateral-refund",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

// MirrorRefund posts the deposit/refund round trip, keyed on the deposit
// transaction hash. A conflict means the entry already exists and is treated
// as success.
func (m *Mirror) MirrorRefund(ctx context.Context, deposit *models.DepositRecord, refund *models.RefundTransaction) error {
	smallAmt := deposit.Amount.Shift(int32(precisionFor(m.symbol))).BigInt().String()

	postTx := shared.V2PostTransaction{
		Reference: strPtr("refund-" + deposit.DepositTxHash),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptRefundRoundTrip,
			Vars: map[string]string{
				"asset":           formanceAsset(m.symbol),
				"amount":          smallAmt,
				"deposit_tx_hash": deposit.DepositTxHash,
				"refund_tx_hash":  refund.TxHash,
				"sender_address":  deposit.SenderAddress,
				"owner_id":        deposit.OwnerId,
			},
		},
	}
	// Use the on-chain block time as the effective date when available.
	if rc := models.GetRefundContext(ctx); rc != nil && !rc.BlockTime.IsZero() {
		postTx.Timestamp = &rc.BlockTime
	}

	_, err := m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            m.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			return nil // idempotent
		}
		return fmt.Errorf("error mirroring refund: %w", err)
	}

	zap.L().Info("Refund mirrored in Formance",
		zap.String("deposit_tx_hash", deposit.DepositTxHash),
		zap.String("refund_tx_hash", refund.TxHash),
		zap.String("amount", deposit.Amount.String()))
	return nil
}

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(symbol string) string {
	return fmt.Sprintf("%s/%d", symbol, precisionFor(symbol))
}

func precisionFor(symbol string) int {
	if p, ok := assetPrecision[symbol]; ok {
		return p
	}
	return 6
}

// isConflictError checks whether a Formance SDK error is a CONFLICT
// (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }
