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
	"fmt"

	"collateral-refund-go/internal/api"
	"collateral-refund-go/internal/common"
	"collateral-refund-go/internal/config"

	"go.uber.org/zap"
)

func main() {
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
	items, err := statusService.ListReviewItems(ctx)
	if err != nil {
		zap.L().Fatal("Failed to list review items", zap.Error(err))
	}

	if len(items) == 0 {
		fmt.Println("No deposits held for review")
		return
	}

	fmt.Printf("%d deposit(s) held for review:\n\n", len(items))
	for _, item := range items {
		fmt.Printf("  Sender:     %s\n", item.SenderAddress)
		fmt.Printf("  Deposit tx: %s\n", item.DepositTxHash)
		fmt.Printf("  Amount:     %s\n", item.Amount.String())
		fmt.Printf("  Reason:     %s\n", item.Reason)
		fmt.Printf("  Observed:   %s\n\n", item.ObservedAt.Format("2006-01-02 15:04:05 MST"))
	}
}
