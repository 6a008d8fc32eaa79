package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"collateral-refund-go/internal/custodian"
	"collateral-refund-go/internal/database"
	"collateral-refund-go/internal/formance"
	"collateral-refund-go/internal/indexer"
	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/prime"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Services bundles everything the monitor needs for one deployment.
type Services struct {
	DbService  *database.Service
	Indexer    indexer.Client
	Submitter  custodian.Submitter
	Mirror     *formance.Mirror // nil when the audit mirror is disabled
	Deployment *models.Deployment
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the configured ledger backend, the database, and
// the optional audit mirror. The deployment file's confirmation policy
// overrides the environment default when set.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	deployment, err := LoadDeployment(cfg.Monitor.DeploymentFile)
	if err != nil {
		return nil, err
	}
	if deployment.MinConfirmations > 0 {
		cfg.Monitor.MinConfirmations = deployment.MinConfirmations
	}
	zap.L().Info("Watching deployment",
		zap.String("address", deployment.Address),
		zap.String("network", deployment.Network),
		zap.Int64("min_confirmations", cfg.Monitor.MinConfirmations))

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var (
		idx indexer.Client
		sub custodian.Submitter
	)
	switch cfg.Ledger.Backend {
	case models.LedgerBackendRPC:
		idx, sub, err = initializeRPCBackend(cfg, deployment)
	case models.LedgerBackendPrime:
		idx, sub, err = initializePrimeBackend(ctx, cfg, deployment)
	default:
		err = fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
	if err != nil {
		dbService.Close()
		return nil, err
	}

	var mirror *formance.Mirror
	if cfg.Formance.StackURL != "" {
		mirror, err = formance.NewMirror(ctx, cfg.Formance, cfg.Ledger.Symbol)
		if err != nil {
			dbService.Close()
			return nil, err
		}
	} else {
		zap.L().Info("Formance audit mirror disabled")
	}

	return &Services{
		DbService:  dbService,
		Indexer:    idx,
		Submitter:  sub,
		Mirror:     mirror,
		Deployment: deployment,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like status queries.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func initializeRPCBackend(cfg *models.Config, deployment *models.Deployment) (indexer.Client, custodian.Submitter, error) {
	if cfg.Ledger.IndexerURL == "" || cfg.Ledger.SubmitURL == "" {
		return nil, nil, fmt.Errorf("rpc backend requires INDEXER_URL and SUBMIT_URL")
	}
	if cfg.Ledger.CustodialKey == "" {
		return nil, nil, fmt.Errorf("rpc backend requires CUSTODIAL_KEY")
	}

	idx, err := indexer.NewHTTPClient(cfg.Ledger.IndexerURL, deployment.Address)
	if err != nil {
		return nil, nil, err
	}
	sub, err := custodian.NewRPCSubmitter(cfg.Ledger.SubmitURL, cfg.Ledger.CustodialKey)
	if err != nil {
		return nil, nil, err
	}
	return idx, sub, nil
}

func initializePrimeBackend(ctx context.Context, cfg *models.Config, deployment *models.Deployment) (indexer.Client, custodian.Submitter, error) {
	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		return nil, nil, err
	}

	primeService, err := prime.NewService(creds)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Finding default portfolio")
	portfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("Using default portfolio",
		zap.String("name", portfolio.Name),
		zap.String("id", portfolio.Id))

	wallet, err := primeService.FindWalletForSymbol(ctx, portfolio.Id, cfg.Ledger.Symbol)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("Using custodial wallet",
		zap.String("wallet_id", wallet.Id),
		zap.String("symbol", wallet.Symbol))

	idx := indexer.NewPrimeIndexer(primeService, portfolio.Id, wallet.Id,
		deployment.Address, cfg.Monitor.MinConfirmations)
	sub := custodian.NewPrimeSubmitter(primeService, portfolio.Id, wallet.Id,
		cfg.Ledger.Symbol, cfg.Monitor.MinConfirmations)
	return idx, sub, nil
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
