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

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chaindeed/deedsync/event"
)

const (
	RequestSubmittedEventType event.EventType = "ledger.request_submitted"
	RequestApprovedEventType  event.EventType = "ledger.request_approved"
	RequestRejectedEventType  event.EventType = "ledger.request_rejected"
	TransferEventType         event.EventType = "ledger.transfer"
)

// RequestSubmittedEvent is published when the registry records a new
// mint request.
type RequestSubmittedEvent struct {
	RequestID *big.Int
	Requester common.Address
}

// RequestApprovedEvent is published when the authority approves a
// request. An approval implies a new certificate token for the
// requester.
type RequestApprovedEvent struct {
	RequestID *big.Int
	Requester common.Address
}

// RequestRejectedEvent is published when the authority rejects a
// request.
type RequestRejectedEvent struct {
	RequestID *big.Int
	Requester common.Address
	Reason    string
}

// TransferEvent is published when token ownership changes, including
// the mint transfer from the zero address.
type TransferEvent struct {
	TokenID *big.Int
	From    common.Address
	To      common.Address
}
