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

const (
	// Owner queries
	queryInsertOwner = `
		INSERT INTO owners (id, handle, placeholder)
		VALUES (?, ?, ?)
		RETURNING id, handle, placeholder, created_at, updated_at`

	queryGetOwnerById = `
		SELECT id, handle, placeholder, created_at, updated_at
		FROM owners
		WHERE id = ?`

	// Deposit record queries
	queryInsertDeposit = `
		INSERT INTO deposit_records (
			id, sender_address, owner_id, amount, deposit_tx_hash,
			verified, refunded, flagged, flag_reason
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`

	queryGetDepositById = depositColumns + `
		WHERE id = ?`

	queryGetDepositByTxHash = depositColumns + `
		WHERE deposit_tx_hash = ? AND deposit_tx_hash != ''`

	queryGetPendingDepositBySender = depositColumns + `
		WHERE sender_address = ? AND verified = 0 AND refunded = 0 AND flagged = 0
		ORDER BY created_at
		LIMIT 1`

	queryGetOutstandingDepositBySender = depositColumns + `
		WHERE sender_address = ? AND verified = 1 AND refunded = 0
		LIMIT 1`

	queryGetLatestDepositBySender = depositColumns + `
		WHERE sender_address = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`

	queryMarkDepositVerified = `
		UPDATE deposit_records
		SET verified = 1, deposit_tx_hash = ?, flagged = 0, flag_reason = '',
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND verified = 0 AND refunded = 0`

	queryGetOldestQueuedDepositBySender = depositColumns + `
		WHERE sender_address = ? AND refunded = 0 AND flag_reason = ?
		ORDER BY created_at, rowid
		LIMIT 1`

	queryFlagDeposit = `
		UPDATE deposit_records
		SET flagged = 1, flag_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND refunded = 0`

	queryListFlaggedDeposits = depositColumns + `
		WHERE flagged = 1 AND refunded = 0
		ORDER BY created_at`

	queryMarkDepositRefunded = `
		UPDATE deposit_records
		SET refunded = 1, refund_tx_hash = ?, refunded_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND verified = 1 AND refunded = 0`

	depositColumns = `
		SELECT id, sender_address, owner_id, amount, deposit_tx_hash,
		       verified, refunded, flagged, flag_reason,
		       refund_tx_hash, refunded_at, created_at, updated_at
		FROM deposit_records`

	// Processed marker queries
	queryReserveMarker = `
		INSERT INTO processed_markers (tx_hash, outcome, attempts)
		VALUES (?, ?, 1)
		ON CONFLICT(tx_hash) DO NOTHING`

	queryGetMarker = `
		SELECT tx_hash, outcome, attempts, created_at, updated_at
		FROM processed_markers
		WHERE tx_hash = ?`

	queryAdvanceMarker = `
		UPDATE processed_markers
		SET outcome = ?, attempts = attempts + ?, updated_at = CURRENT_TIMESTAMP
		WHERE tx_hash = ? AND outcome NOT IN (?, ?)`

	queryListMarkersByOutcome = `
		SELECT tx_hash, outcome, attempts, created_at, updated_at
		FROM processed_markers
		WHERE outcome = ?
		ORDER BY created_at`

	queryListRetryableMarkers = `
		SELECT tx_hash, outcome, attempts, created_at, updated_at
		FROM processed_markers
		WHERE outcome IN (?, ?)
		ORDER BY created_at`

	// Cursor queries
	queryGetCursor = `
		SELECT position, block_time, updated_at
		FROM cursor_state
		WHERE id = 1`

	queryUpsertCursor = `
		INSERT INTO cursor_state (id, position, block_time, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			block_time = excluded.block_time,
			updated_at = CURRENT_TIMESTAMP`

	// Refund transaction queries
	queryInsertRefund = `
		INSERT INTO refund_transactions (
			tx_hash, deposit_tx_hash, destination, amount, status, confirmations, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetRefundByDepositHash = `
		SELECT tx_hash, deposit_tx_hash, destination, amount, status, confirmations, submitted_at, confirmed_at
		FROM refund_transactions
		WHERE deposit_tx_hash = ?`

	queryGetPendingRefundByDestination = `
		SELECT tx_hash, deposit_tx_hash, destination, amount, status, confirmations, submitted_at, confirmed_at
		FROM refund_transactions
		WHERE destination = ? AND status = 'pending'
		ORDER BY submitted_at DESC
		LIMIT 1`

	queryListPendingRefunds = `
		SELECT tx_hash, deposit_tx_hash, destination, amount, status, confirmations, submitted_at, confirmed_at
		FROM refund_transactions
		WHERE status = 'pending'
		ORDER BY submitted_at`

	queryConfirmRefund = `
		UPDATE refund_transactions
		SET status = 'confirmed', confirmations = ?, confirmed_at = ?
		WHERE tx_hash = ? AND status = 'pending'`

	queryUpdateRefundConfirmations = `
		UPDATE refund_transactions
		SET confirmations = ?
		WHERE tx_hash = ? AND status = 'pending'`

	queryGetRefundDepositHash = `
		SELECT deposit_tx_hash FROM refund_transactions WHERE tx_hash = ?`
)
