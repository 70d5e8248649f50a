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

// Package ledger defines the read and write interfaces to the external
// certificate registry, plus the entities it owns. The registry is the
// single source of truth for request lifecycle and token ownership; this
// engine only reflects it.
package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RequestStatus is the lifecycle state of a mint request. Values match
// the on-chain enum encoding.
type RequestStatus uint8

const (
	StatusPending  RequestStatus = 0
	StatusApproved RequestStatus = 1
	StatusRejected RequestStatus = 2
)

func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status can no longer change. Approval and
// rejection are irreversible from this engine's perspective.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// MintRequest is a certificate mint request as recorded by the registry.
// Created on submit; only the registry mutates its status.
type MintRequest struct {
	SubmittedAt  time.Time
	RequestID    *big.Int
	TokenURI     string
	Description  string
	RejectReason string
	Requester    common.Address
	Status       RequestStatus
}

// OwnedToken is a minted certificate token together with its content
// reference, as reported by the registry's enumeration queries.
type OwnedToken struct {
	TokenID  *big.Int
	TokenURI string
}

// Reader is the read-only projection of the registry. All operations are
// idempotent, safe for concurrent use, and may return results that are
// already stale by the time they arrive. Failures are wrapped as
// ErrLedgerUnavailable and are always retryable.
type Reader interface {
	// GetRequest returns a single request by id.
	GetRequest(ctx context.Context, requestID *big.Int) (*MintRequest, error)
	// GetUserRequests returns the ids of all requests submitted by an
	// account, oldest first.
	GetUserRequests(
		ctx context.Context,
		account common.Address,
	) ([]*big.Int, error)
	// GetPendingRequests returns all requests awaiting review. Only
	// meaningful for the registry authority.
	GetPendingRequests(ctx context.Context) ([]MintRequest, error)
	// GetBalance returns the number of tokens owned by an account.
	GetBalance(ctx context.Context, account common.Address) (uint64, error)
	// GetOwnedTokens enumerates the tokens owned by an account together
	// with their token URIs.
	GetOwnedTokens(
		ctx context.Context,
		account common.Address,
	) ([]OwnedToken, error)
	// ContractOwner returns the authority account.
	ContractOwner(ctx context.Context) (common.Address, error)
}

// Writer is the registry mutation surface. Transaction mechanics
// (signing, gas, confirmation) belong to the implementation.
type Writer interface {
	// SubmitRequest submits a new mint request and returns the id the
	// registry assigned, derived solely from the emitted confirmation.
	SubmitRequest(
		ctx context.Context,
		tokenURI string,
		description string,
	) (*big.Int, error)
	// Approve approves a pending request, minting the certificate.
	Approve(ctx context.Context, requestID *big.Int) error
	// RejectRequest rejects a pending request with a reason.
	RejectRequest(
		ctx context.Context,
		requestID *big.Int,
		reason string,
	) error
}
