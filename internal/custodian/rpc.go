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

package custodian

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"collateral-refund-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// RPCSubmitter signs refund transactions with a backend-held ed25519 key and
// submits them to the ledger submission API. A single mutex serializes every
// submission so two refunds never build against the same spendable balance.
type RPCSubmitter struct {
	submitURL     string
	httpClient    http.Client
	key           ed25519.PrivateKey
	sourceAddress string

	mu sync.Mutex
}

func NewRPCSubmitter(submitURL, custodialKeyHex string) (*RPCSubmitter, error) {
	if submitURL == "" {
		return nil, fmt.Errorf("submit URL cannot be empty")
	}

	seed, err := hex.DecodeString(custodialKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: not valid hex: %v", ErrInvalidSigningKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d-byte seed, got %d", ErrInvalidSigningKey, ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)

	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure transport: %w", err)
	}

	return &RPCSubmitter{
		submitURL:     submitURL,
		httpClient:    http.Client{Transport: tr, Timeout: 60 * time.Second},
		key:           key,
		sourceAddress: hex.EncodeToString(key.Public().(ed25519.PublicKey)),
	}, nil
}

// refundPayload is the canonical signing body for an outbound refund.
type refundPayload struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Nonce       string `json:"nonce"`
	Memo        string `json:"memo"`
}

type submitRequest struct {
	Payload   refundPayload `json:"payload"`
	PublicKey string        `json:"public_key"`
	Signature string        `json:"signature"`
}

type submitResponse struct {
	TxHash string `json:"tx_hash"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *RPCSubmitter) SubmitRefund(ctx context.Context, deposit *models.DepositRecord) (*models.RefundTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The nonce is derived from the deposit hash: resubmitting after a crash
	// hits the provider's replay protection instead of paying twice.
	nonce := uuid.NewSHA1(uuid.NameSpaceOID, []byte(deposit.DepositTxHash)).String()

	payload := refundPayload{
		Source:      s.sourceAddress,
		Destination: deposit.SenderAddress,
		Amount:      deposit.Amount.String(),
		Nonce:       nonce,
		Memo:        deposit.DepositTxHash,
	}

	signed, err := s.sign(payload)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	zap.L().Info("Submitting refund transaction",
		zap.String("deposit_tx_hash", deposit.DepositTxHash),
		zap.String("destination", deposit.SenderAddress),
		zap.String("amount", deposit.Amount.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.submitURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refund submission failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close submit response body", zap.Error(err))
		}
	}()

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("unable to decode submit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, classifySubmitError(resp.StatusCode, result)
	}
	if result.TxHash == "" {
		return nil, fmt.Errorf("submission accepted but no transaction hash returned")
	}

	return &models.RefundTransaction{
		TxHash:        result.TxHash,
		DepositTxHash: deposit.DepositTxHash,
		Destination:   deposit.SenderAddress,
		Amount:        deposit.Amount,
		Status:        models.RefundStatusPending,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

func (s *RPCSubmitter) sign(payload refundPayload) (*submitRequest, error) {
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}
	signature := ed25519.Sign(s.key, canonical)

	return &submitRequest{
		Payload:   payload,
		PublicKey: s.sourceAddress,
		Signature: hex.EncodeToString(signature),
	}, nil
}

func classifySubmitError(status int, result submitResponse) error {
	code, message := "", ""
	if result.Error != nil {
		code = result.Error.Code
		message = result.Error.Message
	}

	switch code {
	case "insufficient_funds":
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, message)
	case "malformed", "invalid_signature":
		return fmt.Errorf("%w: %s", ErrMalformedTransaction, message)
	}
	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: status %d: %s", ErrMalformedTransaction, status, message)
	}
	return fmt.Errorf("submission rejected with status %d (%s): %s", status, code, message)
}

type confirmationsResponse struct {
	TxHash        string `json:"tx_hash"`
	Status        string `json:"status"`
	Confirmations int64  `json:"confirmations"`
}

func (s *RPCSubmitter) Confirmations(ctx context.Context, txHash string) (int64, error) {
	endpoint := fmt.Sprintf("%s/v1/transactions/%s", s.submitURL, url.PathEscape(txHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("unable to build confirmations request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("confirmations request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close confirmations response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("confirmations query returned status %d: %s", resp.StatusCode, body)
	}

	var result confirmationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("unable to decode confirmations response: %w", err)
	}
	return result.Confirmations, nil
}
