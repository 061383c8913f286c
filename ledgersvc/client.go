// Copyright 2026 TreasuryKit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledgersvc provides a typed HTTP client for the value-transfer
// ledger service. As with the governance client there are no retries or
// backoff; a call either returns a typed payload or a typed error.
package ledgersvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/treasurykit/stakewarden/apierror"
)

const maxResponseBytes = 1 << 20

// Client is an HTTP client for the ledger service REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client for the ledger client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new ledger service API client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TransferRequest describes a single value transfer. Memo is carried to
// the destination so the governance service can later match the funding
// transfer during claim.
type TransferRequest struct {
	ToAccount    string `json:"to_account"`
	ToSubaccount []byte `json:"to_subaccount,omitempty"`
	Amount       uint64 `json:"amount"`
	Fee          uint64 `json:"fee"`
	Memo         []byte `json:"memo,omitempty"`
}

type transferResponse struct {
	BlockHeight uint64 `json:"block_height"`
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

type serviceError struct {
	Message string `json:"message"`
}

// Transfer moves funds and returns the block height of the recorded
// transfer. Corresponds to POST /v1/transfer.
func (c *Client) Transfer(
	ctx context.Context,
	req TransferRequest,
) (uint64, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return 0, apierror.WrapExternal(
			fmt.Errorf("encoding transfer request: %w", err),
		)
	}
	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/transfer",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return 0, apierror.WrapExternal(
			fmt.Errorf("creating request: %w", err),
		)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	body, err := c.do(httpReq)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	var resp transferResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return 0, apierror.WrapExternal(
			fmt.Errorf("decoding transfer response: %w", err),
		)
	}
	return resp.BlockHeight, nil
}

// BalanceOf returns the balance of the given account. Corresponds to
// GET /v1/balance/{account}.
func (c *Client) BalanceOf(
	ctx context.Context,
	account string,
) (uint64, error) {
	reqURL := c.baseURL + "/v1/balance/" + url.PathEscape(account)
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		reqURL,
		nil,
	)
	if err != nil {
		return 0, apierror.WrapExternal(
			fmt.Errorf("creating request: %w", err),
		)
	}
	req.Header.Set("Accept", "application/json")
	body, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer body.Close()
	var resp balanceResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return 0, apierror.WrapExternal(
			fmt.Errorf("decoding balance response: %w", err),
		)
	}
	return resp.Balance, nil
}

func (c *Client) do(req *http.Request) (io.ReadCloser, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("executing request: %w", err),
		)
	}
	if resp == nil || resp.Body == nil {
		return nil, apierror.WrapExternal(
			errors.New("nil response from server"),
		)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var svcErr serviceError
		if jsonErr := json.Unmarshal(bodyBytes, &svcErr); jsonErr == nil &&
			svcErr.Message != "" {
			return nil, apierror.ExternalService(svcErr.Message)
		}
		return nil, apierror.ExternalService(fmt.Sprintf(
			"unexpected status %d: %s",
			resp.StatusCode,
			string(bodyBytes),
		))
	}
	return &limitedReadCloser{
		Reader: io.LimitReader(resp.Body, maxResponseBytes),
		Closer: resp.Body,
	}, nil
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
