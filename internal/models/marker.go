package models

import "time"

// MarkerOutcome is the processing state of a single observed transaction hash.
// A hash moves through at most:
//
//	reserved -> refund_submitted -> refund_confirmed
//
// or drops into refund_failed_transient (retried on a later cycle) or
// refund_failed_permanent (operator intervention). refund_confirmed is
// immutable; the hash can never be reprocessed.
type MarkerOutcome string

const (
	MarkerReserved              MarkerOutcome = "reserved"
	MarkerRefundSubmitted       MarkerOutcome = "refund_submitted"
	MarkerRefundConfirmed       MarkerOutcome = "refund_confirmed"
	MarkerRefundFailedTransient MarkerOutcome = "refund_failed_transient"
	MarkerRefundFailedPermanent MarkerOutcome = "refund_failed_permanent"
)

// Retryable reports whether the marker leaves the transaction eligible for
// another refund attempt.
func (o MarkerOutcome) Retryable() bool {
	return o == MarkerReserved || o == MarkerRefundFailedTransient
}

// Terminal reports whether the marker is in a final state for this hash.
func (o MarkerOutcome) Terminal() bool {
	return o == MarkerRefundConfirmed || o == MarkerRefundFailedPermanent
}

// ProcessedMarker is one row per transaction hash ever handled by the engine,
// independent of the cursor.
type ProcessedMarker struct {
	TxHash    string        `db:"tx_hash"`
	Outcome   MarkerOutcome `db:"outcome"`
	Attempts  int           `db:"attempts"`
	CreatedAt time.Time     `db:"created_at"`
	UpdatedAt time.Time     `db:"updated_at"`
}
