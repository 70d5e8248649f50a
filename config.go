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

package deedsync

import (
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaindeed/deedsync/ledger"
)

type Config struct {
	promRegistry    prometheus.Registerer
	logger          *slog.Logger
	ledgerReader    ledger.Reader
	ledgerWriter    ledger.Writer
	account         common.Address
	rpcURL          string
	contractAddress string
	privateKeyHex   string
	gateways        []string
	refreshInterval time.Duration
	fetchTimeout    time.Duration
	sweepRetryDelay time.Duration
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	tracing         bool
	tracingStdout   bool
}

// ConfigOptionFunc is a type that represents functions that modify the engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new deedsync config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies the prometheus registerer to use
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithLedgerReader specifies a registry read implementation. The default
// is to dial the configured RPC endpoint
func WithLedgerReader(reader ledger.Reader) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerReader = reader
	}
}

// WithLedgerWriter specifies a registry write implementation
func WithLedgerWriter(writer ledger.Writer) ConfigOptionFunc {
	return func(c *Config) {
		c.ledgerWriter = writer
	}
}

// WithAccount specifies the account the engine synchronizes for
func WithAccount(account common.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.account = account
	}
}

// WithRPCURL specifies the chain JSON-RPC endpoint to dial when no
// ledger reader is provided
func WithRPCURL(rpcURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.rpcURL = rpcURL
	}
}

// WithContractAddress specifies the deployed registry contract address
func WithContractAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.contractAddress = address
	}
}

// WithPrivateKey specifies the hex-encoded signing key. Submitting,
// approving, and rejecting requests require it
func WithPrivateKey(privateKeyHex string) ConfigOptionFunc {
	return func(c *Config) {
		c.privateKeyHex = privateKeyHex
	}
}

// WithGateways specifies the ranked content gateway base URLs. The
// default is the built-in public gateway list
func WithGateways(gateways []string) ConfigOptionFunc {
	return func(c *Config) {
		c.gateways = gateways
	}
}

// WithRefreshInterval specifies the silent background refresh period
func WithRefreshInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.refreshInterval = interval
	}
}

// WithFetchTimeout specifies the per-gateway metadata fetch timeout
func WithFetchTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.fetchTimeout = timeout
	}
}

// WithSweepRetryDelay specifies the back-off before the one automatic
// gateway re-sweep
func WithSweepRetryDelay(delay time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepRetryDelay = delay
	}
}

// WithPollInterval specifies how often the chain is scanned for
// registry contract logs
func WithPollInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pollInterval = interval
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracing enables tracing
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout instead of OTLP-over-HTTP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
