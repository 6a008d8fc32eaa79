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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.EngineStore.
var _ store.EngineStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.InitSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Registration owners. Placeholder rows are synthesized for self-service deposits.
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		handle TEXT NOT NULL,
		placeholder BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Collateral deposits. Never deleted; part of the audit trail.
	CREATE TABLE IF NOT EXISTS deposit_records (
		id TEXT PRIMARY KEY,
		sender_address TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '' ,
		amount TEXT NOT NULL,
		deposit_tx_hash TEXT NOT NULL DEFAULT '',
		verified BOOLEAN NOT NULL DEFAULT 0,
		refunded BOOLEAN NOT NULL DEFAULT 0,
		flagged BOOLEAN NOT NULL DEFAULT 0,
		flag_reason TEXT NOT NULL DEFAULT '',
		refund_tx_hash TEXT NOT NULL DEFAULT '',
		refunded_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- At most one verified, unrefunded deposit per sender address.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_outstanding
		ON deposit_records(sender_address) WHERE verified = 1 AND refunded = 0;
	-- A deposit transaction hash maps to at most one record.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_tx_hash
		ON deposit_records(deposit_tx_hash) WHERE deposit_tx_hash != '';
	CREATE INDEX IF NOT EXISTS idx_deposits_sender ON deposit_records(sender_address);
	CREATE INDEX IF NOT EXISTS idx_deposits_flagged ON deposit_records(flagged);

	-- Idempotency markers, one row per transaction hash ever handled.
	-- Dedicated table: never shares storage with real financial transactions.
	CREATE TABLE IF NOT EXISTS processed_markers (
		tx_hash TEXT PRIMARY KEY,
		outcome TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_markers_outcome ON processed_markers(outcome);

	-- Single-row cursor over the external transaction history.
	CREATE TABLE IF NOT EXISTS cursor_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		position TEXT NOT NULL,
		block_time TIMESTAMP NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Outbound refund payments, append-only.
	CREATE TABLE IF NOT EXISTS refund_transactions (
		tx_hash TEXT PRIMARY KEY,
		deposit_tx_hash TEXT NOT NULL UNIQUE,
		destination TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		confirmations INTEGER NOT NULL DEFAULT 0,
		submitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		confirmed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_refunds_status ON refund_transactions(status);
	CREATE INDEX IF NOT EXISTS idx_refunds_destination ON refund_transactions(destination);
	`

	_, err := s.db.Exec(schema)
	return err
}
