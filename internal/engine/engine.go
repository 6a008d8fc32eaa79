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

package engine

import (
	"context"
	"fmt"
	"time"

	"collateral-refund-go/internal/custodian"
	"collateral-refund-go/internal/indexer"
	"collateral-refund-go/internal/models"
	"collateral-refund-go/internal/proofs"
	"collateral-refund-go/internal/resolver"
	"collateral-refund-go/internal/store"

	"go.uber.org/zap"
)

// AuditLedger mirrors recognized deposits and issued refunds into an external
// double-entry ledger. Mirroring is best-effort; a mirror failure never blocks
// or delays a refund.
type AuditLedger interface {
	MirrorRefund(ctx context.Context, deposit *models.DepositRecord, refund *models.RefundTransaction) error
}

// Engine drives the deposit monitoring cycle: poll the ledger for new
// transactions to the custodial address, recognize each deposit exactly once,
// issue the refund, and track it to confirmation.
type Engine struct {
	store     store.EngineStore
	indexer   indexer.Client
	submitter custodian.Submitter
	resolver  *resolver.Resolver
	prover    proofs.Capability
	audit     AuditLedger // nil disables mirroring
	cfg       models.MonitorConfig

	stopChan chan struct{}
	doneChan chan struct{}

	consecutivePollFailures int
}

func New(
	engineStore store.EngineStore,
	idx indexer.Client,
	submitter custodian.Submitter,
	res *resolver.Resolver,
	prover proofs.Capability,
	audit AuditLedger,
	cfg models.MonitorConfig,
) *Engine {
	if prover == nil {
		prover = proofs.Noop{}
	}
	return &Engine{
		store:     engineStore,
		indexer:   idx,
		submitter: submitter,
		resolver:  res,
		prover:    prover,
		audit:     audit,
		cfg:       cfg,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start recovers any in-flight work left over from a previous run and then
// launches the polling and reconciliation loops.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recoverState(ctx); err != nil {
		return fmt.Errorf("unable to recover engine state: %w", err)
	}
	go e.run(ctx)
	zap.L().Info("Deposit monitor started",
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Duration("reconcile_interval", e.cfg.ReconcileInterval))
	return nil
}

// Stop signals the loops to exit and blocks until in-flight work completes.
func (e *Engine) Stop() {
	close(e.stopChan)
	<-e.doneChan
	zap.L().Info("Deposit monitor stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)

	pollTicker := time.NewTicker(e.cfg.PollInterval)
	defer pollTicker.Stop()
	reconcileTicker := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	e.cycle(ctx)

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			e.cycle(ctx)
		case <-reconcileTicker.C:
			e.reconcile(ctx)
		}
	}
}

// cycle runs one poll pass followed by a sweep of the retry backlog.
func (e *Engine) cycle(ctx context.Context) {
	if err := e.poll(ctx); err != nil {
		e.consecutivePollFailures++
		zap.L().Error("Poll cycle failed",
			zap.Error(err),
			zap.Int("consecutive_failures", e.consecutivePollFailures))
		if e.cfg.FailureAlertThreshold > 0 && e.consecutivePollFailures >= e.cfg.FailureAlertThreshold {
			zap.L().Error("Poll cycle failing repeatedly, operator attention required",
				zap.Int("consecutive_failures", e.consecutivePollFailures))
		}
	} else {
		e.consecutivePollFailures = 0
	}

	e.retrySweep(ctx)
}

// recoverState reloads persisted work on startup. Markers left retryable and
// refunds left pending from before a crash are picked up again; the sweep runs
// once immediately so refunds resume before the first tick.
func (e *Engine) recoverState(ctx context.Context) error {
	retryable, err := e.store.ListRetryableMarkers(ctx)
	if err != nil {
		return err
	}
	pending, err := e.store.ListPendingRefunds(ctx)
	if err != nil {
		return err
	}
	if len(retryable) > 0 || len(pending) > 0 {
		zap.L().Info("Recovered in-flight work from previous run",
			zap.Int("retryable_markers", len(retryable)),
			zap.Int("pending_refunds", len(pending)))
	}
	return nil
}
