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

// Package deedsync assembles the certificate synchronization engine:
// wire events from the registry contract and pull sweeps over its
// state into one consistent local view, with metadata resolved through
// ranked content gateways.
package deedsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chaindeed/deedsync/event"
	"github.com/chaindeed/deedsync/gateway"
	"github.com/chaindeed/deedsync/ledger"
	"github.com/chaindeed/deedsync/ledger/evm"
	"github.com/chaindeed/deedsync/metadata"
	"github.com/chaindeed/deedsync/mintflow"
	"github.com/chaindeed/deedsync/store"
	"github.com/chaindeed/deedsync/syncer"
)

type Engine struct {
	eventBus      *event.EventBus
	store         *store.Store
	resolver      *gateway.Resolver
	fetcher       *metadata.Client
	syncer        *syncer.Syncer
	workflow      *mintflow.Workflow
	evmClient     *evm.Client
	poller        *evm.Poller
	ledgerReader  ledger.Reader
	ledgerWriter  ledger.Writer
	shutdownFuncs []func(context.Context) error
	config        Config
	account       common.Address
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Engine, error) {
	if cfg.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		config:       cfg,
		eventBus:     event.NewEventBus(cfg.promRegistry, cfg.logger),
		ledgerReader: cfg.ledgerReader,
		ledgerWriter: cfg.ledgerWriter,
		done:         make(chan struct{}),
	}
	if err := e.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// Dial the registry contract when no ledger was injected. HTTP
	// connections are lazy, so this only fails on bad configuration.
	if e.ledgerReader == nil {
		evmClient, err := evm.NewClient(
			context.Background(),
			evm.ClientConfig{
				Logger:          cfg.logger,
				RPCURL:          cfg.rpcURL,
				ContractAddress: cfg.contractAddress,
				PrivateKeyHex:   cfg.privateKeyHex,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to registry: %w", err)
		}
		e.evmClient = evmClient
		e.ledgerReader = evmClient
		if e.ledgerWriter == nil && cfg.privateKeyHex != "" {
			e.ledgerWriter = evmClient
		}
	}
	e.account = cfg.account
	if e.account == (common.Address{}) && e.evmClient != nil {
		e.account = e.evmClient.SignerAddress()
	}
	if e.account == (common.Address{}) {
		return nil, errors.New("no account configured")
	}
	// Build the sync pipeline
	e.store = store.New(store.StoreConfig{
		PromRegistry: cfg.promRegistry,
		Logger:       cfg.logger,
		EventBus:     e.eventBus,
	})
	fetcherOpts := []metadata.ClientOption{
		metadata.WithLogger(cfg.logger),
	}
	if cfg.fetchTimeout > 0 {
		fetcherOpts = append(
			fetcherOpts,
			metadata.WithFetchTimeout(cfg.fetchTimeout),
		)
	}
	e.resolver = gateway.NewResolver(cfg.gateways)
	e.fetcher = metadata.NewClient(
		e.resolver,
		fetcherOpts...,
	)
	e.syncer = syncer.New(syncer.SyncerConfig{
		Logger:          cfg.logger,
		EventBus:        e.eventBus,
		Store:           e.store,
		Ledger:          e.ledgerReader,
		Fetcher:         e.fetcher,
		PromRegistry:    cfg.promRegistry,
		SweepRetryDelay: cfg.sweepRetryDelay,
		RefreshInterval: cfg.refreshInterval,
	})
	if e.ledgerWriter != nil {
		e.workflow = mintflow.New(mintflow.WorkflowConfig{
			Logger: cfg.logger,
			Writer: e.ledgerWriter,
		})
	}
	return e, nil
}

func (e *Engine) configValidate() error {
	if e.ledgerReader == nil && e.config.rpcURL == "" {
		return errors.New("no ledger reader and no RPC URL configured")
	}
	if e.ledgerReader == nil && e.config.contractAddress == "" {
		return errors.New("no contract address configured")
	}
	if e.config.account == (common.Address{}) &&
		e.config.privateKeyHex == "" {
		return errors.New("no account configured")
	}
	return nil
}

func (e *Engine) Run() error {
	// Configure tracing
	if e.config.tracing {
		if err := e.setupTracing(); err != nil {
			return err
		}
	}
	// Start the contract log poller
	if e.evmClient != nil {
		e.poller = evm.NewPoller(e.evmClient, evm.PollerConfig{
			Logger:       e.config.logger,
			EventBus:     e.eventBus,
			PollInterval: e.config.pollInterval,
		})
		if err := e.poller.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start log poller: %w", err)
		}
	}
	// Start the sync loop with an eager initial refresh
	e.syncer.Start(e.account)
	e.config.logger.Info(
		"synchronization engine started",
		"component", "engine",
		"account", e.account.Hex(),
		"gateways", e.resolver.GatewayCount(),
	)
	<-e.done
	return nil
}

// Stop shuts the engine down gracefully. Safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.shutdown()
	})
	return err
}

func (e *Engine) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if e.config.shutdownTimeout > 0 {
		shutdownTimeout = e.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	e.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop producing new signals
	e.config.logger.Debug("shutdown phase 1: stopping signal producers")

	if e.poller != nil {
		e.poller.Stop()
	}

	// Phase 2: Drain the sync loop
	e.config.logger.Debug("shutdown phase 2: draining sync loop")

	if e.syncer != nil {
		e.syncer.Stop()
	}

	// Phase 3: Cleanup resources
	e.config.logger.Debug("shutdown phase 3: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range e.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	e.shutdownFuncs = nil

	if e.evmClient != nil {
		e.evmClient.Close()
	}

	if e.eventBus != nil {
		e.eventBus.Stop()
	}

	e.config.logger.Debug("graceful shutdown complete")
	close(e.done)
	return err
}

// Subscribe registers a listener for cache updates and returns an
// unsubscribe function.
func (e *Engine) Subscribe(listener store.Listener) func() {
	return e.store.Subscribe(listener)
}

// Refresh requests a reconciliation sweep. Overlapping requests are
// coalesced into one ledger read.
func (e *Engine) Refresh(silent bool) {
	e.syncer.Refresh(silent)
}

// Retry re-resolves metadata for one failed entry.
func (e *Engine) Retry(key store.EntryKey) {
	e.syncer.Retry(key)
}

// SetAccount switches the synchronization scope to another account.
func (e *Engine) SetAccount(account common.Address) {
	e.syncer.SetAccount(account)
}

// Account returns the account the engine is currently scoped to.
func (e *Engine) Account() common.Address {
	return e.syncer.Account()
}

// IsAuthority reports whether the scoped account is the registry
// authority.
func (e *Engine) IsAuthority() bool {
	return e.syncer.IsAuthority()
}

// Submit validates and submits a new mint request.
func (e *Engine) Submit(
	ctx context.Context,
	tokenURI string,
	description string,
) (*big.Int, error) {
	if e.workflow == nil {
		return nil, evm.ErrNoSigner
	}
	requestID, err := e.workflow.Submit(ctx, tokenURI, description)
	if err != nil {
		return nil, err
	}
	e.syncer.Refresh(true)
	return requestID, nil
}

// Approve approves a pending mint request.
func (e *Engine) Approve(ctx context.Context, requestID *big.Int) error {
	if e.workflow == nil {
		return evm.ErrNoSigner
	}
	if err := e.workflow.Approve(ctx, requestID); err != nil {
		return err
	}
	e.syncer.Refresh(true)
	return nil
}

// Reject rejects a pending mint request with a reason.
func (e *Engine) Reject(
	ctx context.Context,
	requestID *big.Int,
	reason string,
) error {
	if e.workflow == nil {
		return evm.ErrNoSigner
	}
	if err := e.workflow.Reject(ctx, requestID, reason); err != nil {
		return err
	}
	e.syncer.Refresh(true)
	return nil
}

// Requests returns the scoped account's mint requests, newest first.
func (e *Engine) Requests() []ledger.MintRequest {
	return e.store.RequestsForAccount(e.syncer.Account())
}

// PendingRequests returns all requests awaiting review, oldest first.
func (e *Engine) PendingRequests() []ledger.MintRequest {
	return e.store.PendingForAuthority()
}

// Certificates returns the scoped account's certificate entries with
// their metadata resolution state.
func (e *Engine) Certificates() []store.CacheEntry {
	return e.store.CertificatesForAccount()
}

// Store exposes the underlying cache for direct reads.
func (e *Engine) Store() *store.Store {
	return e.store
}
