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

package store

import (
	"math/big"
	"time"

	"github.com/chaindeed/deedsync/ledger"
	"github.com/chaindeed/deedsync/metadata"
)

// EntryKind distinguishes the two identity spaces the store caches.
type EntryKind string

const (
	// KindRequest entries are keyed by mint request id.
	KindRequest EntryKind = "request"
	// KindToken entries are keyed by certificate token id.
	KindToken EntryKind = "token"
)

// EntryState is the resolution state of a cache entry's metadata.
type EntryState string

const (
	StateEmpty   EntryState = "empty"
	StateLoading EntryState = "loading"
	StateReady   EntryState = "ready"
	StateFailed  EntryState = "failed"
)

// EntryKey identifies one cache entry.
type EntryKey struct {
	Identity string
	Kind     EntryKind
}

// RequestKey builds the cache key for a mint request id.
func RequestKey(requestID *big.Int) EntryKey {
	return EntryKey{Kind: KindRequest, Identity: requestID.String()}
}

// TokenKey builds the cache key for a token id.
func TokenKey(tokenID *big.Int) EntryKey {
	return EntryKey{Kind: KindToken, Identity: tokenID.String()}
}

// CacheEntry is the versioned record for one identity. Ledger fields and
// metadata resolution state live side by side: the ledger data arrives
// from the bulk sweep while the metadata resolves independently.
type CacheEntry struct {
	LastAttempt time.Time
	Request     *ledger.MintRequest
	Token       *ledger.OwnedToken
	Metadata    *metadata.TokenMetadata
	Err         error
	State       EntryState
	Attempt     uint32
	// GatewayIndex remembers the gateway that last served this entry so
	// retries start there instead of at the top of the ranking.
	GatewayIndex int
	// Epoch tags the synchronization scope that produced the entry.
	Epoch uint64
}

// TokenURI returns the content reference the entry's metadata resolves
// from, or empty when the ledger data has not arrived yet.
func (e *CacheEntry) TokenURI() string {
	switch {
	case e.Token != nil:
		return e.Token.TokenURI
	case e.Request != nil:
		return e.Request.TokenURI
	default:
		return ""
	}
}
