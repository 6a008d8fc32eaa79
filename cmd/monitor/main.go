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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collateral-refund-go/internal/common"
	"collateral-refund-go/internal/config"
	"collateral-refund-go/internal/engine"
	"collateral-refund-go/internal/proofs"
	"collateral-refund-go/internal/resolver"

	"go.uber.org/zap"
)

func main() {
	deploymentFile := flag.String("deployment", "", "Optional path to deployment.yaml (default: DEPLOYMENT_FILE env)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}
	if *deploymentFile != "" {
		cfg.Monitor.DeploymentFile = *deploymentFile
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting deposit monitor",
		zap.String("ledger_backend", cfg.Ledger.Backend),
		zap.String("deposit_amount", cfg.Monitor.DepositAmount.String()))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	res := resolver.NewResolver(services.DbService, cfg.Monitor.DepositAmount)

	var audit engine.AuditLedger
	if services.Mirror != nil {
		audit = services.Mirror
	}

	eng := engine.New(services.DbService, services.Indexer, services.Submitter,
		res, proofs.Noop{}, audit, cfg.Monitor)

	if err := eng.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start engine", zap.Error(err))
	}

	zap.L().Info("Monitor running", zap.String("address", services.Deployment.Address))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping monitor...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		eng.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Monitor stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
