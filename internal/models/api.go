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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus is the user-visible state of a deposit. It reports status
// only; internal retry mechanics are never exposed.
type DepositStatus struct {
	SenderAddress string          `json:"sender_address"`
	Amount        decimal.Decimal `json:"amount"`
	DepositTxHash string          `json:"deposit_tx_hash,omitempty"`
	Verified      bool            `json:"verified"`
	Refunded      bool            `json:"refunded"`
	RefundTxHash  string          `json:"refund_tx_hash,omitempty"`
	RefundStatus  string          `json:"refund_status,omitempty"`
	RefundedAt    time.Time       `json:"refunded_at,omitempty"`
	HeldForReview bool            `json:"held_for_review"`
}

// ReviewItem is one deposit awaiting operator attention.
type ReviewItem struct {
	SenderAddress string          `json:"sender_address"`
	DepositTxHash string          `json:"deposit_tx_hash"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	ObservedAt    time.Time       `json:"observed_at"`
}
