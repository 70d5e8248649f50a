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
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaindeed/deedsync/ledger"
	"github.com/chaindeed/deedsync/store"
)

var (
	testAccount = common.HexToAddress(
		"0x1111111111111111111111111111111111111111",
	)
	testAuthority = common.HexToAddress(
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	)
)

type stubLedger struct {
	requests map[string]*ledger.MintRequest
	userIds  []*big.Int
	tokens   []ledger.OwnedToken
	owner    common.Address
}

func (s *stubLedger) GetRequest(
	_ context.Context,
	requestID *big.Int,
) (*ledger.MintRequest, error) {
	req, ok := s.requests[requestID.String()]
	if !ok {
		return nil, ledger.NotFound(requestID)
	}
	reqCopy := *req
	return &reqCopy, nil
}

func (s *stubLedger) GetUserRequests(
	_ context.Context,
	_ common.Address,
) ([]*big.Int, error) {
	return s.userIds, nil
}

func (s *stubLedger) GetPendingRequests(
	_ context.Context,
) ([]ledger.MintRequest, error) {
	var ret []ledger.MintRequest
	for _, req := range s.requests {
		if req.Status == ledger.StatusPending {
			ret = append(ret, *req)
		}
	}
	return ret, nil
}

func (s *stubLedger) GetBalance(
	_ context.Context,
	_ common.Address,
) (uint64, error) {
	return uint64(len(s.tokens)), nil
}

func (s *stubLedger) GetOwnedTokens(
	_ context.Context,
	_ common.Address,
) ([]ledger.OwnedToken, error) {
	return s.tokens, nil
}

func (s *stubLedger) ContractOwner(_ context.Context) (common.Address, error) {
	return s.owner, nil
}

func TestNewConfigValidation(t *testing.T) {
	testDefs := []struct {
		name string
		opts []ConfigOptionFunc
	}{
		{
			name: "no ledger and no RPC URL",
			opts: []ConfigOptionFunc{
				WithAccount(testAccount),
			},
		},
		{
			name: "RPC URL without contract address",
			opts: []ConfigOptionFunc{
				WithAccount(testAccount),
				WithRPCURL("http://127.0.0.1:8545"),
			},
		},
		{
			name: "no account and no signing key",
			opts: []ConfigOptionFunc{
				WithLedgerReader(&stubLedger{}),
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := New(NewConfig(testDef.opts...))
			require.Error(t, err)
		})
	}
}

func TestEngineRunStop(t *testing.T) {
	stub := &stubLedger{
		owner: testAuthority,
		requests: map[string]*ledger.MintRequest{
			"1": {
				RequestID:   big.NewInt(1),
				Requester:   testAccount,
				SubmittedAt: time.Unix(1700000001, 0),
				Status:      ledger.StatusPending,
			},
		},
		userIds: []*big.Int{big.NewInt(1)},
	}
	engine, err := New(NewConfig(
		WithLedgerReader(stub),
		WithAccount(testAccount),
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithRefreshInterval(time.Hour),
	))
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() {
		runDone <- engine.Run()
	}()

	deadline := time.After(5 * time.Second)
	for {
		if len(engine.Requests()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for initial sweep")
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Equal(t, testAccount, engine.Account())
	assert.False(t, engine.IsAuthority())

	require.NoError(t, engine.Stop())
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}

	// Stop is idempotent
	require.NoError(t, engine.Stop())
}

func TestEngineWriteSurfaceWithoutSigner(t *testing.T) {
	stub := &stubLedger{owner: testAuthority}
	engine, err := New(NewConfig(
		WithLedgerReader(stub),
		WithAccount(testAccount),
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithRefreshInterval(time.Hour),
	))
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() {
		runDone <- engine.Run()
	}()
	defer func() {
		_ = engine.Stop()
		<-runDone
	}()

	_, err = engine.Submit(context.Background(), "ipfs://x", "desc")
	require.Error(t, err)
	require.Error(t, engine.Approve(context.Background(), big.NewInt(1)))
	require.Error(
		t,
		engine.Reject(context.Background(), big.NewInt(1), "reason"),
	)
}

func TestEngineSubscribe(t *testing.T) {
	stub := &stubLedger{
		owner: testAuthority,
		tokens: []ledger.OwnedToken{
			{TokenID: big.NewInt(3), TokenURI: ""},
		},
	}
	engine, err := New(NewConfig(
		WithLedgerReader(stub),
		WithAccount(testAccount),
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithRefreshInterval(time.Hour),
	))
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() {
		runDone <- engine.Run()
	}()
	defer func() {
		_ = engine.Stop()
		<-runDone
	}()

	updateCh := make(chan store.EntryKey, 16)
	unsubscribe := engine.Subscribe(
		func(key store.EntryKey, _ store.CacheEntry) {
			select {
			case updateCh <- key:
			default:
			}
		},
	)
	defer unsubscribe()

	engine.Refresh(true)
	select {
	case key := <-updateCh:
		assert.Equal(t, store.KindToken, key.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for cache update")
	}
}
