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

// Package store holds the authoritative in-memory cache of mint
// requests and certificate tokens for the current synchronization
// scope. The store is the engine's only mutable shared state: all
// mutation goes through its methods, and its conflict policy
// (attempt-ordered stale-write rejection plus scope-epoch tagging)
// substitutes for locking across overlapping asynchronous refreshes.
package store

import (
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chaindeed/deedsync/event"
	"github.com/chaindeed/deedsync/ledger"
	"github.com/chaindeed/deedsync/metadata"
)

// UpdateEventType is published on the event bus for every accepted
// write.
const UpdateEventType event.EventType = "store.update"

// UpdateEvent carries the key and a snapshot of the entry after an
// accepted write.
type UpdateEvent struct {
	Key   EntryKey
	Entry CacheEntry
}

// Listener receives a snapshot of an entry after every accepted write.
// Listeners are invoked synchronously in the writer's goroutine.
type Listener func(EntryKey, CacheEntry)

// StoreConfig holds dependencies for a Store.
type StoreConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
}

// Store is the certificate cache. Safe for concurrent use.
type Store struct {
	config  StoreConfig
	metrics struct {
		entries     *prometheus.GaugeVec
		updatesNum  prometheus.Counter
		staleWrites prometheus.Counter
		fetchesBusy prometheus.Gauge
	}
	logger    *slog.Logger
	eventBus  *event.EventBus
	entries   map[EntryKey]*CacheEntry
	inflight  map[EntryKey]bool
	listeners map[int]Listener
	lastSubId int
	epoch     uint64
	sync.RWMutex
}

// New creates an empty Store.
func New(config StoreConfig) *Store {
	s := &Store{
		config:    config,
		eventBus:  config.EventBus,
		entries:   make(map[EntryKey]*CacheEntry),
		inflight:  make(map[EntryKey]bool),
		listeners: make(map[int]Listener),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		s.logger = config.Logger
	}
	promautoFactory := promauto.With(config.PromRegistry)
	s.metrics.entries = promautoFactory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deedsync_store_entries",
			Help: "current cache entries by kind and state",
		},
		[]string{"kind", "state"},
	)
	s.metrics.updatesNum = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "deedsync_store_updates_total",
			Help: "total accepted cache writes",
		},
	)
	s.metrics.staleWrites = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "deedsync_store_stale_writes_total",
			Help: "total writes rejected as stale",
		},
	)
	s.metrics.fetchesBusy = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "deedsync_store_fetches_inflight",
			Help: "current in-flight metadata fetches",
		},
	)
	return s
}

// Subscribe registers a listener for accepted writes and returns an
// unsubscribe function.
func (s *Store) Subscribe(listener Listener) func() {
	s.Lock()
	defer s.Unlock()
	s.lastSubId++
	subId := s.lastSubId
	s.listeners[subId] = listener
	return func() {
		s.Lock()
		defer s.Unlock()
		delete(s.listeners, subId)
	}
}

// Epoch returns the current scope epoch.
func (s *Store) Epoch() uint64 {
	s.RLock()
	defer s.RUnlock()
	return s.epoch
}

// Reset tears down the previous scope and installs a new epoch. All
// entries are dropped; in-flight results from the old scope are
// rejected on arrival by the epoch check.
func (s *Store) Reset(epoch uint64) {
	s.Lock()
	defer s.Unlock()
	s.epoch = epoch
	s.entries = make(map[EntryKey]*CacheEntry)
	s.inflight = make(map[EntryKey]bool)
	s.metrics.entries.Reset()
	s.metrics.fetchesBusy.Set(0)
	s.logger.Debug(
		"store reset",
		"component", "store",
		"epoch", epoch,
	)
}

// Read returns a snapshot of the entry for a key.
func (s *Store) Read(key EntryKey) (CacheEntry, bool) {
	s.RLock()
	defer s.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	return *entry, true
}

// Entries returns snapshots of all entries of a kind.
func (s *Store) Entries(kind EntryKind) map[EntryKey]CacheEntry {
	s.RLock()
	defer s.RUnlock()
	ret := make(map[EntryKey]CacheEntry)
	for key, entry := range s.entries {
		if key.Kind == kind {
			ret[key] = *entry
		}
	}
	return ret
}

// UpsertRequest merges ledger request data into the cache. Metadata
// resolution state on an existing entry is preserved; a changed token
// URI resets it so the new content gets fetched.
func (s *Store) UpsertRequest(epoch uint64, req *ledger.MintRequest) {
	if req == nil || req.RequestID == nil {
		return
	}
	key := RequestKey(req.RequestID)
	s.Lock()
	if epoch != s.epoch {
		s.metrics.staleWrites.Inc()
		s.Unlock()
		return
	}
	entry, ok := s.entries[key]
	if !ok {
		entry = &CacheEntry{State: StateEmpty}
		s.entries[key] = entry
	}
	if entry.Request != nil && entry.Request.TokenURI != req.TokenURI {
		entry.Metadata = nil
		entry.State = StateEmpty
		// Attempt stays monotonic so a fetch claimed under the old URI
		// cannot land its result on the new content
		entry.Attempt++
		entry.GatewayIndex = 0
	}
	entry.Request = req
	entry.Epoch = epoch
	snapshot := *entry
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
}

// UpsertToken merges an owned token into the cache.
func (s *Store) UpsertToken(epoch uint64, token *ledger.OwnedToken) {
	if token == nil || token.TokenID == nil {
		return
	}
	key := TokenKey(token.TokenID)
	s.Lock()
	if epoch != s.epoch {
		s.metrics.staleWrites.Inc()
		s.Unlock()
		return
	}
	entry, ok := s.entries[key]
	if !ok {
		entry = &CacheEntry{State: StateEmpty}
		s.entries[key] = entry
	}
	if entry.Token != nil && entry.Token.TokenURI != token.TokenURI {
		entry.Metadata = nil
		entry.State = StateEmpty
		// Attempt stays monotonic so a fetch claimed under the old URI
		// cannot land its result on the new content
		entry.Attempt++
		entry.GatewayIndex = 0
	}
	entry.Token = token
	entry.Epoch = epoch
	snapshot := *entry
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
}

// PruneTokens removes token entries whose identity is not in keep. Used
// after an ownership sweep: a token transferred away no longer belongs
// in the viewer's certificate view.
func (s *Store) PruneTokens(epoch uint64, keep map[string]bool) {
	s.Lock()
	defer s.Unlock()
	if epoch != s.epoch {
		return
	}
	for key := range s.entries {
		if key.Kind != KindToken {
			continue
		}
		if !keep[key.Identity] {
			// Release the fetch slot of a pruned in-flight key; the fetch's
			// completion will find no entry and becomes a no-op
			s.endFetch(key)
			delete(s.entries, key)
		}
	}
	s.refreshEntryGauge()
}

// BeginFetch claims the single in-flight fetch slot for a key and
// transitions the entry to Loading. It returns the attempt number the
// eventual completion write must carry, and false when another fetch is
// already in flight, the epoch is stale, or the key is unknown.
func (s *Store) BeginFetch(
	key EntryKey,
	epoch uint64,
) (uint32, bool) {
	s.Lock()
	if epoch != s.epoch {
		s.Unlock()
		return 0, false
	}
	entry, ok := s.entries[key]
	if !ok || s.inflight[key] {
		s.Unlock()
		return 0, false
	}
	s.inflight[key] = true
	entry.State = StateLoading
	entry.Attempt++
	entry.LastAttempt = time.Now()
	entry.Epoch = epoch
	attempt := entry.Attempt
	snapshot := *entry
	s.metrics.fetchesBusy.Inc()
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
	return attempt, true
}

// RetryFetch registers one more gateway sweep under an in-flight claim.
// The entry stays Loading and the attempt number advances, so the final
// completion records how many sweeps ran and anything still carrying the
// earlier attempt is rejected as stale. Returns the new attempt number,
// and false when the claim no longer exists or belongs to another scope.
func (s *Store) RetryFetch(
	key EntryKey,
	epoch uint64,
	attempt uint32,
) (uint32, bool) {
	s.Lock()
	if epoch != s.epoch {
		s.Unlock()
		return 0, false
	}
	entry, ok := s.entries[key]
	if !ok || !s.inflight[key] || entry.Attempt != attempt {
		s.Unlock()
		return 0, false
	}
	entry.Attempt++
	entry.LastAttempt = time.Now()
	next := entry.Attempt
	snapshot := *entry
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
	return next, true
}

// ResolveMetadata records a successful fetch. The write is rejected
// when its epoch is stale or a later attempt already wrote the entry,
// so a slow superseded retry can never clobber a newer result.
func (s *Store) ResolveMetadata(
	key EntryKey,
	epoch uint64,
	attempt uint32,
	md *metadata.TokenMetadata,
	gatewayIndex int,
) {
	s.Lock()
	s.endFetch(key)
	if !s.writeAllowed(key, epoch, attempt) {
		s.Unlock()
		return
	}
	entry := s.entries[key]
	entry.Metadata = md
	entry.Err = nil
	entry.State = StateReady
	entry.GatewayIndex = gatewayIndex
	snapshot := *entry
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
}

// FailMetadata records a terminal fetch failure for this attempt.
func (s *Store) FailMetadata(
	key EntryKey,
	epoch uint64,
	attempt uint32,
	fetchErr error,
) {
	s.Lock()
	s.endFetch(key)
	if !s.writeAllowed(key, epoch, attempt) {
		s.Unlock()
		return
	}
	entry := s.entries[key]
	entry.Err = fetchErr
	entry.State = StateFailed
	snapshot := *entry
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
}

// Invalidate resets metadata resolution for a key so the next sweep
// refetches it. Ledger data and the pinned gateway index are kept.
func (s *Store) Invalidate(key EntryKey) {
	s.Lock()
	entry, ok := s.entries[key]
	if !ok {
		s.Unlock()
		return
	}
	entry.Metadata = nil
	entry.Err = nil
	entry.State = StateEmpty
	snapshot := *entry
	s.accepted()
	s.Unlock()
	s.notify(key, snapshot)
}

// caller must hold the write lock
func (s *Store) endFetch(key EntryKey) {
	if s.inflight[key] {
		delete(s.inflight, key)
		s.metrics.fetchesBusy.Dec()
	}
}

// caller must hold the write lock
func (s *Store) writeAllowed(
	key EntryKey,
	epoch uint64,
	attempt uint32,
) bool {
	if epoch != s.epoch {
		s.metrics.staleWrites.Inc()
		s.logger.Debug(
			"dropped write from stale scope",
			"component", "store",
			"kind", key.Kind,
			"identity", key.Identity,
			"epoch", epoch,
		)
		return false
	}
	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	if entry.Attempt > attempt {
		s.metrics.staleWrites.Inc()
		s.logger.Debug(
			"rejected stale write",
			"component", "store",
			"kind", key.Kind,
			"identity", key.Identity,
			"write_attempt", attempt,
			"entry_attempt", entry.Attempt,
		)
		return false
	}
	return true
}

// caller must hold the write lock
func (s *Store) accepted() {
	s.metrics.updatesNum.Inc()
	s.refreshEntryGauge()
}

// caller must hold the write lock
func (s *Store) refreshEntryGauge() {
	s.metrics.entries.Reset()
	for key, entry := range s.entries {
		s.metrics.entries.WithLabelValues(
			string(key.Kind),
			string(entry.State),
		).Inc()
	}
}

// notify delivers an accepted write to subscribers and the event bus.
// Called outside the lock so listeners may read the store.
func (s *Store) notify(key EntryKey, snapshot CacheEntry) {
	s.RLock()
	listenerList := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listenerList = append(listenerList, listener)
	}
	s.RUnlock()
	for _, listener := range listenerList {
		listener(key, snapshot)
	}
	if s.eventBus != nil {
		s.eventBus.Publish(
			UpdateEventType,
			event.NewEvent(
				UpdateEventType,
				UpdateEvent{Key: key, Entry: snapshot},
			),
		)
	}
}

// RequestsForAccount returns the account's requests, newest first.
func (s *Store) RequestsForAccount(
	account common.Address,
) []ledger.MintRequest {
	s.RLock()
	defer s.RUnlock()
	var ret []ledger.MintRequest
	for key, entry := range s.entries {
		if key.Kind != KindRequest || entry.Request == nil {
			continue
		}
		if entry.Request.Requester == account {
			ret = append(ret, *entry.Request)
		}
	}
	slices.SortFunc(ret, func(a, b ledger.MintRequest) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return ret
}

// PendingForAuthority returns all cached requests still awaiting
// review, oldest first.
func (s *Store) PendingForAuthority() []ledger.MintRequest {
	s.RLock()
	defer s.RUnlock()
	var ret []ledger.MintRequest
	for key, entry := range s.entries {
		if key.Kind != KindRequest || entry.Request == nil {
			continue
		}
		if entry.Request.Status == ledger.StatusPending {
			ret = append(ret, *entry.Request)
		}
	}
	slices.SortFunc(ret, func(a, b ledger.MintRequest) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return ret
}

// CertificatesForAccount returns snapshots of the viewer's certificate
// token entries together with their metadata resolution state.
func (s *Store) CertificatesForAccount() []CacheEntry {
	s.RLock()
	defer s.RUnlock()
	var ret []CacheEntry
	for key, entry := range s.entries {
		if key.Kind != KindToken || entry.Token == nil {
			continue
		}
		ret = append(ret, *entry)
	}
	slices.SortFunc(ret, func(a, b CacheEntry) int {
		return a.Token.TokenID.Cmp(b.Token.TokenID)
	})
	return ret
}
