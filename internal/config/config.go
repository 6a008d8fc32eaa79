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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"collateral-refund-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	pollInterval, err := getEnvDuration("MONITOR_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := getEnvDuration("MONITOR_RECONCILE_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	backoffInitial, err := getEnvDuration("BACKOFF_INITIAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	backoffCap, err := getEnvDuration("BACKOFF_CAP", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	depositAmount, err := getEnvDecimal("DEPOSIT_AMOUNT", "1.5")
	if err != nil {
		return nil, err
	}

	backend := getEnvString("LEDGER_BACKEND", models.LedgerBackendRPC)
	if backend != models.LedgerBackendRPC && backend != models.LedgerBackendPrime {
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q: must be %q or %q",
			backend, models.LedgerBackendRPC, models.LedgerBackendPrime)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "deposits.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Monitor: models.MonitorConfig{
			PollInterval:          pollInterval,
			ReconcileInterval:     reconcileInterval,
			DepositAmount:         depositAmount,
			MinConfirmations:      int64(getEnvInt("MIN_CONFIRMATIONS", 6)),
			BackoffInitial:        backoffInitial,
			BackoffMultiplier:     getEnvFloat("BACKOFF_MULTIPLIER", 2.0),
			BackoffCap:            backoffCap,
			FundingRetryCap:       getEnvInt("FUNDING_RETRY_CAP", 0),
			FailureAlertThreshold: getEnvInt("FAILURE_ALERT_THRESHOLD", 5),
			DeploymentFile:        getEnvString("DEPLOYMENT_FILE", "deployment.yaml"),
		},
		Ledger: models.LedgerConfig{
			Backend:      backend,
			IndexerURL:   getEnvString("INDEXER_URL", ""),
			SubmitURL:    getEnvString("SUBMIT_URL", ""),
			CustodialKey: getEnvString("CUSTODIAL_KEY", ""),
			Symbol:       getEnvString("COLLATERAL_SYMBOL", "USDC"),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER_NAME", "collateral-refund"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%s must be positive, got %s", key, amount)
	}
	return amount, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
