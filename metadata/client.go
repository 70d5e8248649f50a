// Copyright 2025 The ChainDeed Authors
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

package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chaindeed/deedsync/gateway"
)

const (
	// DefaultFetchTimeout bounds each per-gateway GET.
	DefaultFetchTimeout = 10 * time.Second
	// maxMetadataBytes limits metadata JSON bodies to 1 MiB to prevent
	// OOM from a misbehaving gateway.
	maxMetadataBytes = 1 << 20
)

// Client fetches token metadata through ranked content gateways with
// bounded per-candidate timeouts and ordered failover.
type Client struct {
	resolver     *gateway.Resolver
	httpClient   *http.Client
	logger       *slog.Logger
	fetchTimeout time.Duration
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client for gateway requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for per-candidate failure logging.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFetchTimeout overrides the per-gateway request timeout.
func WithFetchTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.fetchTimeout = timeout
		}
	}
}

// NewClient creates a metadata Client using the given gateway resolver.
func NewClient(resolver *gateway.Resolver, opts ...ClientOption) *Client {
	c := &Client{
		resolver: resolver,
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.fetchTimeout,
		}
	}
	return c
}

// Fetch resolves ref and tries each gateway candidate in order starting
// at startGatewayIndex until one returns structurally valid metadata.
// It returns the metadata and the index of the gateway that served it so
// the caller can pin that gateway for subsequent attempts. One call is
// exactly one sweep: when every candidate fails the *FetchError reports
// how many were tried and the caller decides whether to sweep again.
func (c *Client) Fetch(
	ctx context.Context,
	ref string,
	startGatewayIndex int,
) (*TokenMetadata, int, error) {
	urls, err := c.resolver.Resolve(ref)
	if err != nil {
		return nil, 0, err
	}
	md, gwIdx, fetchErr := c.sweep(ctx, ref, urls, startGatewayIndex)
	if fetchErr != nil {
		return nil, 0, fetchErr
	}
	return md, gwIdx, nil
}

// sweep tries every candidate exactly once, wrapping around from the
// start index. The same gateway is never retried within one sweep.
func (c *Client) sweep(
	ctx context.Context,
	ref string,
	urls []string,
	startIdx int,
) (*TokenMetadata, int, *FetchError) {
	if startIdx < 0 || startIdx >= len(urls) {
		startIdx = 0
	}
	lastReason := FailureUnreachable
	var lastErr error
	tried := 0
	for i := range urls {
		if ctx.Err() != nil {
			break
		}
		idx := (startIdx + i) % len(urls)
		tried++
		md, err := c.fetchOne(ctx, urls[idx])
		if err == nil {
			return md, idx, nil
		}
		lastReason = classify(err)
		lastErr = err
		c.logger.Debug(
			"gateway candidate failed, trying next",
			"component", "metadata",
			"ref", ref,
			"gateway_index", idx,
			"total", len(urls),
			"error", err,
		)
	}
	return nil, 0, &FetchError{
		Ref:           ref,
		Reason:        lastReason,
		TriedGateways: tried,
		cause:         lastErr,
	}
}

// fetchOne performs a single bounded GET against one gateway candidate.
func (c *Client) fetchOne(
	ctx context.Context,
	reqURL string,
) (*TokenMetadata, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodGet,
		reqURL,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the error message
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{
			status: resp.StatusCode,
			body:   string(bodyBytes),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	md, err := parseMetadata(data)
	if err != nil {
		return nil, &shapeError{cause: err}
	}
	return md, nil
}

type statusError struct {
	body   string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

type shapeError struct {
	cause error
}

func (e *shapeError) Error() string {
	return e.cause.Error()
}

func (e *shapeError) Unwrap() error {
	return e.cause
}

// classify maps a per-candidate error onto the failure taxonomy.
func classify(err error) FailureReason {
	var shapeErr *shapeError
	if errors.As(err, &shapeErr) {
		return FailureInvalidShape
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureUnreachable
}
