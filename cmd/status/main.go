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
	"errors"
	"flag"
	"fmt"
	"os"

	"collateral-refund-go/internal/api"
	"collateral-refund-go/internal/common"
	"collateral-refund-go/internal/config"
	"collateral-refund-go/internal/store"

	"go.uber.org/zap"
)

func main() {
	sender := flag.String("sender", "", "Sender address to look up (required)")
	flag.Parse()

	if *sender == "" {
		fmt.Fprintln(os.Stderr, "Usage: status -sender <address>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	statusService := api.NewStatusService(dbService)
	status, err := statusService.GetDepositStatus(ctx, *sender)
	if err != nil {
		if errors.Is(err, store.ErrDepositNotFound) {
			fmt.Printf("No deposit found for sender %s\n", *sender)
			os.Exit(1)
		}
		zap.L().Fatal("Failed to query deposit status", zap.Error(err))
	}

	fmt.Printf("Sender:        %s\n", status.SenderAddress)
	fmt.Printf("Amount:        %s\n", status.Amount.String())
	if status.DepositTxHash != "" {
		fmt.Printf("Deposit tx:    %s\n", status.DepositTxHash)
	}
	fmt.Printf("Verified:      %t\n", status.Verified)
	fmt.Printf("Refunded:      %t\n", status.Refunded)
	if status.RefundTxHash != "" {
		fmt.Printf("Refund tx:     %s\n", status.RefundTxHash)
		fmt.Printf("Refund status: %s\n", status.RefundStatus)
	}
	if status.HeldForReview {
		fmt.Println("Held for manual review")
	}
}
