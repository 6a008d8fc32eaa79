package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Monitor  MonitorConfig
	Ledger   LedgerConfig
	Formance FormanceConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// MonitorConfig holds the poll orchestrator settings.
type MonitorConfig struct {
	PollInterval          time.Duration
	ReconcileInterval     time.Duration
	DepositAmount         decimal.Decimal // exact collateral amount, no more, no less
	MinConfirmations      int64
	BackoffInitial        time.Duration
	BackoffMultiplier     float64
	BackoffCap            time.Duration
	FundingRetryCap       int // 0 = retry a funding shortfall forever
	FailureAlertThreshold int
	DeploymentFile        string
}

// LedgerBackend selects how the engine talks to the external ledger.
const (
	LedgerBackendRPC   = "rpc"
	LedgerBackendPrime = "prime"
)

// LedgerConfig holds external ledger access settings.
type LedgerConfig struct {
	Backend      string
	IndexerURL   string
	SubmitURL    string
	CustodialKey string // hex-encoded ed25519 seed for the rpc backend
	Symbol       string // collateral asset symbol, e.g. USDC
}

// FormanceConfig holds the optional audit-mirror ledger settings.
// The mirror is enabled when StackURL is non-empty.
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}
