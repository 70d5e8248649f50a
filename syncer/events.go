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

package syncer

import (
	"github.com/chaindeed/deedsync/event"
	"github.com/chaindeed/deedsync/ledger"
)

func (s *Syncer) subscribeEvents() {
	if s.eventBus == nil {
		return
	}
	s.subscriptions[ledger.RequestSubmittedEventType] = s.eventBus.SubscribeFunc(
		ledger.RequestSubmittedEventType,
		s.handleRequestSubmitted,
	)
	s.subscriptions[ledger.RequestApprovedEventType] = s.eventBus.SubscribeFunc(
		ledger.RequestApprovedEventType,
		s.handleRequestApproved,
	)
	s.subscriptions[ledger.RequestRejectedEventType] = s.eventBus.SubscribeFunc(
		ledger.RequestRejectedEventType,
		s.handleRequestRejected,
	)
	s.subscriptions[ledger.TransferEventType] = s.eventBus.SubscribeFunc(
		ledger.TransferEventType,
		s.handleTransfer,
	)
}

func (s *Syncer) handleRequestSubmitted(evt event.Event) {
	e, ok := evt.Data.(ledger.RequestSubmittedEvent)
	if !ok {
		return
	}
	if e.Requester == s.Account() || s.IsAuthority() {
		s.Refresh(true)
	}
}

// handleRequestApproved reacts to an approval by refreshing. The sweep
// re-queries ownership, so the freshly minted certificate lands in the
// requester's token view without a manual refresh.
func (s *Syncer) handleRequestApproved(evt event.Event) {
	e, ok := evt.Data.(ledger.RequestApprovedEvent)
	if !ok {
		return
	}
	if e.Requester == s.Account() || s.IsAuthority() {
		s.Refresh(true)
	}
}

func (s *Syncer) handleRequestRejected(evt event.Event) {
	e, ok := evt.Data.(ledger.RequestRejectedEvent)
	if !ok {
		return
	}
	if e.Requester == s.Account() || s.IsAuthority() {
		s.Refresh(true)
	}
}

func (s *Syncer) handleTransfer(evt event.Event) {
	e, ok := evt.Data.(ledger.TransferEvent)
	if !ok {
		return
	}
	account := s.Account()
	if e.From == account || e.To == account {
		s.Refresh(true)
	}
}
