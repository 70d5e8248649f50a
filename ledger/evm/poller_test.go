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

package evm

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaindeed/deedsync/event"
	"github.com/chaindeed/deedsync/ledger"
)

func testAbi(t *testing.T) abi.ABI {
	t.Helper()
	parsedAbi, err := abi.JSON(strings.NewReader(chainDeedABI))
	require.NoError(t, err)
	return parsedAbi
}

func testPoller(t *testing.T, eb *event.EventBus) *Poller {
	t.Helper()
	client := &Client{
		abi: testAbi(t),
		address: common.HexToAddress(
			"0xc2C9B98c538764F353993906e0F1e9427B49f061",
		),
	}
	return NewPoller(client, PollerConfig{EventBus: eb})
}

func TestAbiDeclaresLifecycleEvents(t *testing.T) {
	parsedAbi := testAbi(t)
	for _, name := range []string{
		"MintRequestSubmitted",
		"MintRequestApproved",
		"MintRequestRejected",
		"Transfer",
	} {
		evt, ok := parsedAbi.Events[name]
		require.True(t, ok, "missing event %s", name)
		assert.NotEqual(t, common.Hash{}, evt.ID)
	}
	for _, name := range []string{
		"submitMintRequest",
		"approveMintRequest",
		"rejectMintRequest",
		"getRequest",
		"getUserRequests",
		"getPendingRequests",
		"balanceOf",
		"tokenOfOwnerByIndex",
		"tokenURI",
		"owner",
	} {
		_, ok := parsedAbi.Methods[name]
		assert.True(t, ok, "missing method %s", name)
	}
}

func TestDispatchSubmitted(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	poller := testPoller(t, eb)

	_, subCh := eb.Subscribe(ledger.RequestSubmittedEventType)

	requester := common.HexToAddress(
		"0x000000000000000000000000000000000000dEaD",
	)
	poller.dispatch(types.Log{
		Address: poller.client.address,
		Topics: []common.Hash{
			poller.client.abi.Events["MintRequestSubmitted"].ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(requester.Bytes()),
		},
	})

	select {
	case evt := <-subCh:
		data, ok := evt.Data.(ledger.RequestSubmittedEvent)
		require.True(t, ok)
		assert.Equal(t, int64(7), data.RequestID.Int64())
		assert.Equal(t, requester, data.Requester)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for submitted event")
	}
}

func TestDispatchRejectedWithReason(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	poller := testPoller(t, eb)

	_, subCh := eb.Subscribe(ledger.RequestRejectedEventType)

	reasonData, err := poller.client.abi.Events["MintRequestRejected"].Inputs.NonIndexed().
		Pack("document unreadable")
	require.NoError(t, err)

	requester := common.HexToAddress(
		"0x000000000000000000000000000000000000bEEF",
	)
	poller.dispatch(types.Log{
		Address: poller.client.address,
		Topics: []common.Hash{
			poller.client.abi.Events["MintRequestRejected"].ID,
			common.BigToHash(big.NewInt(9)),
			common.BytesToHash(requester.Bytes()),
		},
		Data: reasonData,
	})

	select {
	case evt := <-subCh:
		data, ok := evt.Data.(ledger.RequestRejectedEvent)
		require.True(t, ok)
		assert.Equal(t, int64(9), data.RequestID.Int64())
		assert.Equal(t, "document unreadable", data.Reason)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for rejected event")
	}
}

func TestDispatchTransfer(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	poller := testPoller(t, eb)

	_, subCh := eb.Subscribe(ledger.TransferEventType)

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	poller.dispatch(types.Log{
		Address: poller.client.address,
		Topics: []common.Hash{
			poller.client.abi.Events["Transfer"].ID,
			common.Hash{}, // mint from the zero address
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(3)),
		},
	})

	select {
	case evt := <-subCh:
		data, ok := evt.Data.(ledger.TransferEvent)
		require.True(t, ok)
		assert.Equal(t, common.Address{}, data.From)
		assert.Equal(t, to, data.To)
		assert.Equal(t, int64(3), data.TokenID.Int64())
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for transfer event")
	}
}

func TestDispatchIgnoresUnknownTopics(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	poller := testPoller(t, eb)

	_, subCh := eb.Subscribe(ledger.RequestSubmittedEventType)

	poller.dispatch(types.Log{
		Address: poller.client.address,
		Topics:  []common.Hash{common.HexToHash("0x1234")},
	})

	select {
	case <-subCh:
		t.Fatal("unexpected event for unknown topic")
	case <-time.After(100 * time.Millisecond):
	}
}
