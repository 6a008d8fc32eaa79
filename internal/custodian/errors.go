package custodian

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Sentinel errors for the refund failure taxonomy.
var (
	// ErrInsufficientFunds: the custodial balance cannot cover the refund.
	// Permanent until funded; the deposit stays unrefunded and is retried.
	ErrInsufficientFunds = errors.New("insufficient custodial balance")
	// ErrMalformedTransaction: the constructed transaction was rejected as
	// invalid. A programming fault; never retried indefinitely.
	ErrMalformedTransaction = errors.New("malformed refund transaction")
	// ErrInvalidSigningKey: the custodial key cannot produce valid
	// signatures. Fatal; requires operator remediation.
	ErrInvalidSigningKey = errors.New("invalid custodial signing key")
)

// Class buckets a refund submission error for the orchestrator.
type Class string

const (
	ClassTransient Class = "transient"
	ClassFunding   Class = "funding"
	ClassFatal     Class = "fatal"
)

// Classify maps a submission error onto the failure taxonomy. Unknown errors
// default to transient: resubmission is idempotent at the provider, so
// retrying an unrecognized failure is safe while dropping a recoverable one
// is not.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}

	if errors.Is(err, ErrInsufficientFunds) {
		return ClassFunding
	}
	if errors.Is(err, ErrMalformedTransaction) || errors.Is(err, ErrInvalidSigningKey) {
		return ClassFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, fundingMessageTokens) {
		return ClassFunding
	}
	if containsAny(lower, fatalMessageTokens) {
		return ClassFatal
	}
	return ClassTransient
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var fundingMessageTokens = []string{
	"insufficient funds",
	"insufficient balance",
	"balance too low",
}

var fatalMessageTokens = []string{
	"malformed",
	"invalid argument",
	"invalid params",
	"invalid signature",
	"invalid address",
	"parse error",
}
