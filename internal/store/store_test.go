package store

import (
	"testing"
)

// Compile-time checks that the interface is importable and usable.
func TestEngineStoreInterfaceExists(t *testing.T) {
	// This test simply validates that the EngineStore interface compiles
	// and the sentinel errors are accessible.
	_ = ErrDuplicateTransaction
	_ = ErrDepositNotFound
	_ = ErrCursorRegression
	_ = CreateDepositParams{}

	// Ensure the interface is non-nil type.
	var _ EngineStore
}
