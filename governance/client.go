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

// Package governance provides a typed HTTP client for the external
// governance service that holds the authoritative state of all stake
// positions. Each call either returns a typed payload or a typed error;
// there are no retries or backoff here, callers decide whether to retry.
package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/treasurykit/stakewarden/apierror"
)

// maxResponseBytes limits JSON API responses to 1 MiB to prevent OOM from
// a misconfigured service endpoint.
const maxResponseBytes = 1 << 20

// Client is an HTTP client for the governance service REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client for the governance client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new governance service API client. The baseURL
// should be the base URL of the service (e.g. "https://gov.example.com").
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

type manageRequest struct {
	PositionRef PositionRef `json:"position_ref"`
	Command     Command     `json:"command"`
}

// ManageStakePosition submits a management command against the referenced
// position. Corresponds to POST /v1/positions/manage. A structured error
// payload inside the result is surfaced as an external service error with
// the message preserved.
func (c *Client) ManageStakePosition(
	ctx context.Context,
	ref PositionRef,
	command Command,
) (*CommandResult, error) {
	if err := command.Validate(); err != nil {
		return nil, apierror.Validation("%s", err.Error())
	}
	reqURL := c.baseURL + "/v1/positions/manage"
	body, err := c.doPost(ctx, reqURL, manageRequest{
		PositionRef: ref,
		Command:     command,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var result CommandResult
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("decoding command result: %w", err),
		)
	}
	if result.Error != nil {
		return nil, apierror.ExternalService(result.Error.Message)
	}
	return &result, nil
}

// GetFullPosition retrieves the full snapshot of a position by its
// external identifier. Corresponds to GET /v1/positions/{id}.
func (c *Client) GetFullPosition(
	ctx context.Context,
	externalID uint64,
) (*PositionSnapshot, error) {
	reqURL := c.baseURL + "/v1/positions/" +
		strconv.FormatUint(externalID, 10)
	body, err := c.doGet(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var snapshot PositionSnapshot
	if err := json.NewDecoder(body).Decode(&snapshot); err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("decoding position %d: %w", externalID, err),
		)
	}
	return &snapshot, nil
}

// GetProposal retrieves the status of a proposal by its identifier.
// Corresponds to GET /v1/proposals/{id}.
func (c *Client) GetProposal(
	ctx context.Context,
	proposalID uint64,
) (*ProposalSnapshot, error) {
	reqURL := c.baseURL + "/v1/proposals/" +
		strconv.FormatUint(proposalID, 10)
	body, err := c.doGet(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var snapshot ProposalSnapshot
	if err := json.NewDecoder(body).Decode(&snapshot); err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("decoding proposal %d: %w", proposalID, err),
		)
	}
	return &snapshot, nil
}

func (c *Client) doGet(
	ctx context.Context,
	reqURL string,
) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		reqURL,
		nil,
	)
	if err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("creating request: %w", err),
		)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) doPost(
	ctx context.Context,
	reqURL string,
	payload any,
) (io.ReadCloser, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("encoding request: %w", err),
		)
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		reqURL,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, apierror.WrapExternal(
			fmt.Errorf("creating request: %w", err),
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// do executes the request and returns the response body. The caller is
// responsible for closing the returned ReadCloser. Non-2xx responses are
// surfaced as external service errors with the service's message
// preserved.
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
		var svcErr ServiceError
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

// limitedReadCloser wraps a size-limited Reader with the underlying
// connection's Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
