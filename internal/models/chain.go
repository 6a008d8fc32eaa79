package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IndexedTransaction is one inbound payment to the deposit address as reported
// by the chain-data provider. The provider is not trusted to deduplicate;
// redelivery near the cursor boundary is expected.
type IndexedTransaction struct {
	TxHash        string          `json:"tx_hash"`
	SenderAddress string          `json:"sender_address"`
	Amount        decimal.Decimal `json:"amount"`
	BlockTime     time.Time       `json:"block_time"`
	Confirmations int64           `json:"confirmations"`
}

// Cursor is the durable pointer to the last fully-processed position in the
// external transaction history. BlockTime is the fetch boundary; Position is
// the hash of the last transaction processed at that time, kept so boundary
// redeliveries can be told apart from genuinely new work.
type Cursor struct {
	Position  string    `db:"position"`
	BlockTime time.Time `db:"block_time"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Deployment describes the smart-contract deployment this engine watches:
// a custodial deposit address and the confirmation policy derived from it.
// The contract's internal validation logic is opaque to the engine.
type Deployment struct {
	Address          string `yaml:"address"`
	Network          string `yaml:"network"`
	MinConfirmations int64  `yaml:"min_confirmations"`
}
