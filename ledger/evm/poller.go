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
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chaindeed/deedsync/event"
	"github.com/chaindeed/deedsync/ledger"
)

// DefaultPollInterval is how often the poller scans for new registry
// logs.
const DefaultPollInterval = 15 * time.Second

// PollerConfig configures the registry log poller.
type PollerConfig struct {
	Logger   *slog.Logger
	EventBus *event.EventBus
	// PollInterval overrides DefaultPollInterval when > 0.
	PollInterval time.Duration
}

// Poller periodically scans the chain for registry contract logs and
// republishes them as typed events on the event bus. Log filtering goes
// through plain JSON-RPC so no websocket endpoint is required.
type Poller struct {
	client   *Client
	eventBus *event.EventBus
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	// nextBlock is the first block not yet scanned
	nextBlock uint64
}

// NewPoller creates a Poller for the given registry client.
func NewPoller(client *Client, cfg PollerConfig) *Poller {
	p := &Poller{
		client:   client,
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
		interval: cfg.PollInterval,
		stopCh:   make(chan struct{}),
	}
	if p.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	return p
}

// Start begins polling from the current chain head. Logs emitted before
// Start are never replayed; the initial sweep covers existing state.
func (p *Poller) Start(ctx context.Context) error {
	head, err := p.client.eth.BlockNumber(ctx)
	if err != nil {
		return ledger.Unavailable("fetching chain head", err)
	}
	p.nextBlock = head + 1
	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop halts polling and waits for the poll loop to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *Poller) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.poll(); err != nil {
				// Transient RPC failures leave nextBlock untouched so the
				// missed range is rescanned on the next tick
				p.logger.Debug(
					"log poll failed",
					"component", "ledger",
					"error", err,
				)
			}
		}
	}
}

func (p *Poller) poll() error {
	ctx, cancel := context.WithTimeout(
		context.Background(),
		p.interval,
	)
	defer cancel()
	head, err := p.client.eth.BlockNumber(ctx)
	if err != nil {
		return ledger.Unavailable("fetching chain head", err)
	}
	if head < p.nextBlock {
		return nil
	}
	logs, err := p.client.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(p.nextBlock),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{p.client.address},
	})
	if err != nil {
		return ledger.Unavailable("filtering logs", err)
	}
	for _, txLog := range logs {
		p.dispatch(txLog)
	}
	p.nextBlock = head + 1
	return nil
}

// dispatch decodes one contract log and publishes the matching typed
// event. Unknown topics are ignored.
func (p *Poller) dispatch(txLog types.Log) {
	if len(txLog.Topics) == 0 {
		return
	}
	contractAbi := p.client.abi
	switch txLog.Topics[0] {
	case contractAbi.Events["MintRequestSubmitted"].ID:
		if len(txLog.Topics) < 3 {
			return
		}
		p.eventBus.Publish(
			ledger.RequestSubmittedEventType,
			event.NewEvent(
				ledger.RequestSubmittedEventType,
				ledger.RequestSubmittedEvent{
					RequestID: new(big.Int).SetBytes(txLog.Topics[1].Bytes()),
					Requester: common.BytesToAddress(txLog.Topics[2].Bytes()),
				},
			),
		)
	case contractAbi.Events["MintRequestApproved"].ID:
		if len(txLog.Topics) < 3 {
			return
		}
		p.eventBus.Publish(
			ledger.RequestApprovedEventType,
			event.NewEvent(
				ledger.RequestApprovedEventType,
				ledger.RequestApprovedEvent{
					RequestID: new(big.Int).SetBytes(txLog.Topics[1].Bytes()),
					Requester: common.BytesToAddress(txLog.Topics[2].Bytes()),
				},
			),
		)
	case contractAbi.Events["MintRequestRejected"].ID:
		if len(txLog.Topics) < 3 {
			return
		}
		reason := ""
		values, err := contractAbi.Events["MintRequestRejected"].Inputs.NonIndexed().
			Unpack(txLog.Data)
		if err == nil && len(values) == 1 {
			reason, _ = values[0].(string)
		}
		p.eventBus.Publish(
			ledger.RequestRejectedEventType,
			event.NewEvent(
				ledger.RequestRejectedEventType,
				ledger.RequestRejectedEvent{
					RequestID: new(big.Int).SetBytes(txLog.Topics[1].Bytes()),
					Requester: common.BytesToAddress(txLog.Topics[2].Bytes()),
					Reason:    reason,
				},
			),
		)
	case contractAbi.Events["Transfer"].ID:
		if len(txLog.Topics) < 4 {
			return
		}
		p.eventBus.Publish(
			ledger.TransferEventType,
			event.NewEvent(
				ledger.TransferEventType,
				ledger.TransferEvent{
					From:    common.BytesToAddress(txLog.Topics[1].Bytes()),
					To:      common.BytesToAddress(txLog.Topics[2].Bytes()),
					TokenID: new(big.Int).SetBytes(txLog.Topics[3].Bytes()),
				},
			),
		)
	}
}
