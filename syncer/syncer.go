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

// Package syncer drives reconciliation between the ledger and the local
// certificate store. Push signals (ledger events) and pull signals
// (interval timer, manual refresh) all land in one coalescing queue, so
// overlapping triggers cost exactly one ledger sweep.
package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chaindeed/deedsync/event"
	"github.com/chaindeed/deedsync/ledger"
	"github.com/chaindeed/deedsync/metadata"
	"github.com/chaindeed/deedsync/store"
)

const (
	// DefaultRefreshInterval is the period of the silent background
	// refresh.
	DefaultRefreshInterval = 30 * time.Second
	// DefaultSweepRetryDelay is the back-off before the single automatic
	// re-sweep after every gateway candidate failed. It absorbs
	// propagation delay for content pinned very recently.
	DefaultSweepRetryDelay = 1500 * time.Millisecond
)

// SyncerConfig holds dependencies and tuning for a Syncer.
type SyncerConfig struct {
	Logger          *slog.Logger
	EventBus        *event.EventBus
	Store           *store.Store
	Ledger          ledger.Reader
	Fetcher         *metadata.Client
	PromRegistry    prometheus.Registerer
	RefreshInterval time.Duration
	SweepRetryDelay time.Duration
}

// Syncer owns the synchronization scope (account, epoch) and the single
// refresh loop for it.
type Syncer struct {
	config  SyncerConfig
	metrics struct {
		sweeps        *prometheus.CounterVec
		sweepDuration prometheus.Histogram
		coalesced     prometheus.Counter
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	store    *store.Store
	ledger   ledger.Reader
	fetcher  *metadata.Client

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopCh    chan struct{}
	kickCh    chan struct{}
	retryCh   chan store.EntryKey
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	scopeMutex  sync.Mutex
	account     common.Address
	isAuthority bool

	pendingMutex   sync.Mutex
	pendingRefresh bool
	pendingVisible bool
	sweeping       bool

	subscriptions map[event.EventType]event.EventSubscriberId
}

// New creates a Syncer. The refresh loop does not run until Start.
func New(config SyncerConfig) *Syncer {
	s := &Syncer{
		config:        config,
		eventBus:      config.EventBus,
		store:         config.Store,
		ledger:        config.Ledger,
		fetcher:       config.Fetcher,
		stopCh:        make(chan struct{}),
		kickCh:        make(chan struct{}, 1),
		retryCh:       make(chan store.EntryKey, 16),
		subscriptions: make(map[event.EventType]event.EventSubscriberId),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		s.logger = config.Logger
	}
	if s.config.RefreshInterval <= 0 {
		s.config.RefreshInterval = DefaultRefreshInterval
	}
	if s.config.SweepRetryDelay <= 0 {
		s.config.SweepRetryDelay = DefaultSweepRetryDelay
	}
	promautoFactory := promauto.With(config.PromRegistry)
	s.metrics.sweeps = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deedsync_syncer_sweeps_total",
			Help: "total ledger sweeps by visibility",
		},
		[]string{"visibility"},
	)
	s.metrics.sweepDuration = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name: "deedsync_syncer_sweep_duration_seconds",
			Help: "duration of ledger sweeps",
		},
	)
	s.metrics.coalesced = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "deedsync_syncer_coalesced_refreshes_total",
			Help: "total refresh requests merged into a pending sweep",
		},
	)
	return s
}

// Start launches the refresh loop for the given account and schedules
// the eager initial refresh.
func (s *Syncer) Start(account common.Address) {
	s.startOnce.Do(func() {
		s.ctx, s.ctxCancel = context.WithCancel(context.Background())
		s.scopeMutex.Lock()
		s.account = account
		s.scopeMutex.Unlock()
		s.store.Reset(s.store.Epoch() + 1)
		s.subscribeEvents()
		s.wg.Add(1)
		go s.runLoop()
		s.Refresh(false)
	})
}

// Stop tears the refresh loop down and waits for in-flight work.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		if s.eventBus != nil {
			for eventType, subId := range s.subscriptions {
				s.eventBus.Unsubscribe(eventType, subId)
			}
		}
		close(s.stopCh)
		if s.ctxCancel != nil {
			s.ctxCancel()
		}
		s.wg.Wait()
	})
}

// SetAccount switches the synchronization scope. The store epoch is
// bumped so in-flight results from the old scope are dropped on
// arrival, and an eager refresh for the new account is scheduled.
func (s *Syncer) SetAccount(account common.Address) {
	s.scopeMutex.Lock()
	if s.account == account {
		s.scopeMutex.Unlock()
		return
	}
	s.account = account
	s.isAuthority = false
	s.scopeMutex.Unlock()
	s.store.Reset(s.store.Epoch() + 1)
	s.logger.Info(
		"synchronization scope switched",
		"component", "syncer",
		"account", account.Hex(),
	)
	s.Refresh(true)
}

// Account returns the account the syncer is currently scoped to.
func (s *Syncer) Account() common.Address {
	s.scopeMutex.Lock()
	defer s.scopeMutex.Unlock()
	return s.account
}

// IsAuthority reports whether the scoped account was last observed to
// be the registry authority.
func (s *Syncer) IsAuthority() bool {
	s.scopeMutex.Lock()
	defer s.scopeMutex.Unlock()
	return s.isAuthority
}

// Refresh requests a ledger sweep. A request arriving while a sweep is
// in flight is satisfied by that sweep; a request arriving while one is
// already queued merges into it, with a visible request upgrading a
// queued silent one. Either way overlapping triggers cost one sweep.
func (s *Syncer) Refresh(silent bool) {
	s.pendingMutex.Lock()
	if s.sweeping {
		s.metrics.coalesced.Inc()
		s.pendingMutex.Unlock()
		return
	}
	if s.pendingRefresh {
		s.metrics.coalesced.Inc()
	}
	s.pendingRefresh = true
	if !silent {
		s.pendingVisible = true
	}
	s.pendingMutex.Unlock()
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// Retry re-resolves metadata for a single failed entry. The entry is
// reset to empty first so the fetch gate reopens; the pinned gateway
// index is kept. The fetch itself runs on the refresh loop, so a retry
// after Stop is a no-op.
func (s *Syncer) Retry(key store.EntryKey) {
	s.store.Invalidate(key)
	select {
	case s.retryCh <- key:
	default:
	}
}

func (s *Syncer) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Refresh(true)
		case key := <-s.retryCh:
			s.fetchKey(key, s.store.Epoch())
		case <-s.kickCh:
			s.pendingMutex.Lock()
			visible := s.pendingVisible
			s.pendingRefresh = false
			s.pendingVisible = false
			s.sweeping = true
			s.pendingMutex.Unlock()
			s.sweep(visible)
			s.pendingMutex.Lock()
			s.sweeping = false
			s.pendingMutex.Unlock()
		}
	}
}

// sweep performs one full reconciliation pass: bulk ledger reads,
// partial upserts, then a parallel metadata fan-out. Errors never
// escape; they land in Failed cache entries or in logs.
func (s *Syncer) sweep(visible bool) {
	start := time.Now()
	visibility := "silent"
	if visible {
		visibility = "visible"
	}
	s.metrics.sweeps.WithLabelValues(visibility).Inc()
	epoch := s.store.Epoch()
	s.scopeMutex.Lock()
	account := s.account
	s.scopeMutex.Unlock()

	s.syncAuthority(account)
	s.syncRequests(epoch, account, visible)
	s.syncTokens(epoch, account, visible)
	if s.IsAuthority() {
		s.syncPending(epoch, visible)
	}
	s.fanOutMetadata(epoch)

	s.metrics.sweepDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug(
		"sweep complete",
		"component", "syncer",
		"account", account.Hex(),
		"visibility", visibility,
		"duration", time.Since(start).String(),
	)
}

func (s *Syncer) syncAuthority(account common.Address) {
	owner, err := s.ledger.ContractOwner(s.ctx)
	if err != nil {
		s.logger.Debug(
			"authority lookup failed",
			"component", "syncer",
			"error", err,
		)
		return
	}
	s.scopeMutex.Lock()
	s.isAuthority = owner == account
	s.scopeMutex.Unlock()
}

func (s *Syncer) syncRequests(
	epoch uint64,
	account common.Address,
	visible bool,
) {
	ids, err := s.ledger.GetUserRequests(s.ctx, account)
	if err != nil {
		s.logSweepError("user request sweep failed", err, visible)
		return
	}
	for _, id := range ids {
		// Approved and rejected requests never change again
		if entry, ok := s.store.Read(store.RequestKey(id)); ok &&
			entry.Request != nil && entry.Request.Status.Terminal() {
			continue
		}
		req, err := s.ledger.GetRequest(s.ctx, id)
		if err != nil {
			s.logSweepError("request detail fetch failed", err, visible)
			continue
		}
		s.store.UpsertRequest(epoch, req)
	}
}

func (s *Syncer) syncTokens(
	epoch uint64,
	account common.Address,
	visible bool,
) {
	tokens, err := s.ledger.GetOwnedTokens(s.ctx, account)
	if err != nil {
		s.logSweepError("owned token sweep failed", err, visible)
		return
	}
	keep := make(map[string]bool, len(tokens))
	for i := range tokens {
		token := tokens[i]
		keep[token.TokenID.String()] = true
		s.store.UpsertToken(epoch, &token)
	}
	s.store.PruneTokens(epoch, keep)
}

func (s *Syncer) syncPending(epoch uint64, visible bool) {
	pending, err := s.ledger.GetPendingRequests(s.ctx)
	if err != nil {
		s.logSweepError("pending request sweep failed", err, visible)
		return
	}
	for i := range pending {
		req := pending[i]
		s.store.UpsertRequest(epoch, &req)
	}
}

// fanOutMetadata resolves metadata for every entry still awaiting it.
// Fetches run in parallel and join before the sweep completes; one
// identity's failure never blocks the others.
func (s *Syncer) fanOutMetadata(epoch uint64) {
	var pendingKeys []store.EntryKey
	for _, kind := range []store.EntryKind{store.KindRequest, store.KindToken} {
		for key, entry := range s.store.Entries(kind) {
			if entry.State == store.StateEmpty && entry.TokenURI() != "" {
				pendingKeys = append(pendingKeys, key)
			}
		}
	}
	var fetchWg sync.WaitGroup
	for _, key := range pendingKeys {
		fetchWg.Add(1)
		go func(key store.EntryKey) {
			defer fetchWg.Done()
			s.fetchKey(key, epoch)
		}(key)
	}
	fetchWg.Wait()
}

// fetchKey resolves metadata for one entry. The single-flight gate in
// the store decides whether this caller owns the attempt. When the
// whole gateway sweep fails, one automatic re-sweep runs after a fixed
// back-off and counts as its own attempt; a second full failure is
// terminal until an explicit Retry.
func (s *Syncer) fetchKey(key store.EntryKey, epoch uint64) {
	entry, ok := s.store.Read(key)
	if !ok {
		return
	}
	uri := entry.TokenURI()
	if uri == "" {
		return
	}
	attempt, ok := s.store.BeginFetch(key, epoch)
	if !ok {
		return
	}
	md, gatewayIdx, err := s.fetcher.Fetch(s.ctx, uri, entry.GatewayIndex)
	var fetchErr *metadata.FetchError
	if err != nil && errors.As(err, &fetchErr) {
		attempt, ok = s.store.RetryFetch(key, epoch, attempt)
		if !ok {
			return
		}
		s.logger.Debug(
			"all gateways failed, retrying sweep once",
			"component", "syncer",
			"kind", key.Kind,
			"identity", key.Identity,
			"error", err,
		)
		select {
		case <-s.ctx.Done():
			s.store.FailMetadata(key, epoch, attempt, err)
			return
		case <-time.After(s.config.SweepRetryDelay):
		}
		md, gatewayIdx, err = s.fetcher.Fetch(s.ctx, uri, entry.GatewayIndex)
	}
	if err != nil {
		s.store.FailMetadata(key, epoch, attempt, err)
		s.logger.Debug(
			"metadata resolution failed",
			"component", "syncer",
			"kind", key.Kind,
			"identity", key.Identity,
			"error", err,
		)
		return
	}
	s.store.ResolveMetadata(key, epoch, attempt, md, gatewayIdx)
}

func (s *Syncer) logSweepError(msg string, err error, visible bool) {
	if visible {
		s.logger.Error(msg, "component", "syncer", "error", err)
	} else {
		s.logger.Debug(msg, "component", "syncer", "error", err)
	}
}
