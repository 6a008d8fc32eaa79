package custodian

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"collateral-refund-go/internal/models"

	"github.com/shopspring/decimal"
)

const testSeedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func testDeposit(sender, txHash string) *models.DepositRecord {
	return &models.DepositRecord{
		Id:            "dep-" + txHash,
		SenderAddress: sender,
		Amount:        decimal.RequireFromString("1.5"),
		DepositTxHash: txHash,
		Verified:      true,
	}
}

func TestRPCSubmitterSubmitRefund(t *testing.T) {
	var mu sync.Mutex
	var received submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transactions" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode submit request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintln(w, `{"tx_hash": "ref-1"}`)
	}))
	defer server.Close()

	submitter, err := NewRPCSubmitter(server.URL, testSeedHex)
	if err != nil {
		t.Fatalf("NewRPCSubmitter failed: %v", err)
	}

	refund, err := submitter.SubmitRefund(context.Background(), testDeposit("addr-1", "dep1"))
	if err != nil {
		t.Fatalf("SubmitRefund failed: %v", err)
	}
	if refund.TxHash != "ref-1" {
		t.Errorf("Expected tx hash ref-1, got %s", refund.TxHash)
	}
	if refund.DepositTxHash != "dep1" || refund.Destination != "addr-1" {
		t.Errorf("Refund does not reference the deposit: %+v", refund)
	}
	if refund.Status != models.RefundStatusPending {
		t.Errorf("Expected pending refund, got %s", refund.Status)
	}

	// The server saw a payload signed by the custodial key.
	mu.Lock()
	defer mu.Unlock()
	if received.Payload.Destination != "addr-1" {
		t.Errorf("Expected destination addr-1, got %s", received.Payload.Destination)
	}
	if received.Payload.Memo != "dep1" {
		t.Errorf("Expected memo dep1, got %s", received.Payload.Memo)
	}
	canonical, err := json.Marshal(received.Payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	pubKey, err := hex.DecodeString(received.PublicKey)
	if err != nil {
		t.Fatalf("Public key is not hex: %v", err)
	}
	signature, err := hex.DecodeString(received.Signature)
	if err != nil {
		t.Fatalf("Signature is not hex: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), canonical, signature) {
		t.Error("Signature does not verify over the canonical payload")
	}
}

func TestRPCSubmitterNonceDeterministic(t *testing.T) {
	var nonces []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode submit request: %v", err)
		}
		mu.Lock()
		nonces = append(nonces, req.Payload.Nonce)
		mu.Unlock()
		fmt.Fprintln(w, `{"tx_hash": "ref-1"}`)
	}))
	defer server.Close()

	submitter, err := NewRPCSubmitter(server.URL, testSeedHex)
	if err != nil {
		t.Fatalf("NewRPCSubmitter failed: %v", err)
	}

	// Resubmitting the same deposit must carry the same nonce so the
	// provider's replay protection catches it.
	for i := 0; i < 2; i++ {
		if _, err := submitter.SubmitRefund(context.Background(), testDeposit("addr-1", "dep1")); err != nil {
			t.Fatalf("SubmitRefund %d failed: %v", i, err)
		}
	}
	if len(nonces) != 2 || nonces[0] != nonces[1] {
		t.Errorf("Expected identical nonces across resubmissions, got %v", nonces)
	}
	if nonces[0] == "" {
		t.Error("Expected a non-empty nonce")
	}
}

func TestRPCSubmitterSerializesSubmissions(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		fmt.Fprintln(w, `{"tx_hash": "ref-1"}`)
	}))
	defer server.Close()

	submitter, err := NewRPCSubmitter(server.URL, testSeedHex)
	if err != nil {
		t.Fatalf("NewRPCSubmitter failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			deposit := testDeposit("addr-1", fmt.Sprintf("dep%d", n))
			if _, err := submitter.SubmitRefund(context.Background(), deposit); err != nil {
				t.Errorf("SubmitRefund failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("Expected submissions serialized, saw %d in flight", maxInFlight)
	}
}

func TestRPCSubmitterClassifiesProviderRejection(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{
			name:     "insufficient funds",
			status:   http.StatusUnprocessableEntity,
			body:     `{"error": {"code": "insufficient_funds", "message": "balance too low"}}`,
			sentinel: ErrInsufficientFunds,
		},
		{
			name:     "invalid signature",
			status:   http.StatusBadRequest,
			body:     `{"error": {"code": "invalid_signature", "message": "bad signature"}}`,
			sentinel: ErrMalformedTransaction,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprintln(w, tc.body)
			}))
			defer server.Close()

			submitter, err := NewRPCSubmitter(server.URL, testSeedHex)
			if err != nil {
				t.Fatalf("NewRPCSubmitter failed: %v", err)
			}

			_, err = submitter.SubmitRefund(context.Background(), testDeposit("addr-1", "dep1"))
			if !errors.Is(err, tc.sentinel) {
				t.Errorf("Expected %v, got %v", tc.sentinel, err)
			}
		})
	}
}

func TestRPCSubmitterConfirmations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, "/v1/transactions/") {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprintln(w, `{"tx_hash": "ref-1", "status": "confirmed", "confirmations": 7}`)
	}))
	defer server.Close()

	submitter, err := NewRPCSubmitter(server.URL, testSeedHex)
	if err != nil {
		t.Fatalf("NewRPCSubmitter failed: %v", err)
	}

	confirmations, err := submitter.Confirmations(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("Confirmations failed: %v", err)
	}
	if confirmations != 7 {
		t.Errorf("Expected 7 confirmations, got %d", confirmations)
	}
}

func TestNewRPCSubmitterRejectsBadKey(t *testing.T) {
	if _, err := NewRPCSubmitter("http://localhost", "not-hex"); !errors.Is(err, ErrInvalidSigningKey) {
		t.Errorf("Expected ErrInvalidSigningKey for non-hex seed, got %v", err)
	}
	if _, err := NewRPCSubmitter("http://localhost", "abcd"); !errors.Is(err, ErrInvalidSigningKey) {
		t.Errorf("Expected ErrInvalidSigningKey for short seed, got %v", err)
	}
}
