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

package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"collateral-refund-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// HTTPClient fetches deposit transactions from a JSON chain-data provider.
type HTTPClient struct {
	baseURL        string
	depositAddress string
	httpClient     http.Client
}

func NewHTTPClient(baseURL, depositAddress string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("indexer base URL cannot be empty")
	}
	if depositAddress == "" {
		return nil, fmt.Errorf("deposit address cannot be empty")
	}

	httpClient, err := newTunedHTTPClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}

	return &HTTPClient{
		baseURL:        baseURL,
		depositAddress: depositAddress,
		httpClient:     httpClient,
	}, nil
}

func newTunedHTTPClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (c *HTTPClient) FetchSince(ctx context.Context, cursor *models.Cursor) ([]models.IndexedTransaction, error) {
	endpoint := fmt.Sprintf("%s/v1/addresses/%s/transactions",
		c.baseURL, url.PathEscape(c.depositAddress))

	query := url.Values{}
	query.Set("order", "asc")
	if cursor != nil {
		query.Set("since", cursor.BlockTime.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build indexer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close indexer response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("indexer returned status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Transactions []models.IndexedTransaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("unable to decode indexer response: %w", err)
	}

	// The provider promises ordering but the cursor contract depends on it,
	// so enforce it here.
	txs := payload.Transactions
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].BlockTime.Before(txs[j].BlockTime)
	})

	zap.L().Debug("Fetched indexer transactions",
		zap.String("deposit_address", c.depositAddress),
		zap.Int("count", len(txs)))
	return txs, nil
}
