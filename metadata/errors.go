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

package metadata

import "fmt"

// FailureReason classifies why a metadata fetch failed after exhausting
// all gateway candidates.
type FailureReason string

const (
	// FailureTimeout indicates the final candidate timed out.
	FailureTimeout FailureReason = "timeout"
	// FailureUnreachable indicates a transport error or non-2xx response
	// from the final candidate.
	FailureUnreachable FailureReason = "unreachable"
	// FailureInvalidShape indicates the final candidate responded but the
	// body was not structurally valid metadata.
	FailureInvalidShape FailureReason = "invalid_shape"
)

// FetchError is returned when every gateway candidate failed for a
// reference. It is retryable via an explicit caller-initiated retry.
type FetchError struct {
	cause         error
	Ref           string
	Reason        FailureReason
	TriedGateways int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf(
		"metadata fetch failed for %s: %s (tried %d gateways): %v",
		e.Ref,
		e.Reason,
		e.TriedGateways,
		e.cause,
	)
}

func (e *FetchError) Unwrap() error {
	return e.cause
}
