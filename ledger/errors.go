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
	"errors"
	"fmt"
	"math/big"
)

// ErrLedgerUnavailable indicates a transient failure reaching the
// registry. Always retryable; callers must not discard cached state in
// response to it.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// ErrRequestNotFound indicates the registry has no request with the
// given id.
var ErrRequestNotFound = errors.New("request not found")

// Unavailable wraps a transport-level error as ErrLedgerUnavailable,
// preserving the cause for errors.Is/As.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLedgerUnavailable, op, err)
}

// NotFound wraps a missing request id as ErrRequestNotFound.
func NotFound(requestID *big.Int) error {
	return fmt.Errorf("%w: id %s", ErrRequestNotFound, requestID)
}
