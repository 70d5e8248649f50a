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

// Package gateway resolves content-addressed references to ordered lists
// of fetchable HTTP locations. Content-addressed references are portable
// across public gateways, so the resolver ranks a fixed gateway set by
// historical reliability and yields a deterministic fallback order.
package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

// ErrMalformedReference is returned when a content reference cannot be
// parsed into a valid content identifier.
var ErrMalformedReference = errors.New("malformed content reference")

// DefaultGateways is the default ranked gateway list. Order matters:
// candidates are tried first to last.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://dweb.link/ipfs/",
}

const refScheme = "ipfs://"

// ParseRef validates a content reference and returns the bare content
// identifier. Accepted forms are "ipfs://<cid>", "/ipfs/<cid>" and a bare
// CID. Any path suffix after the CID is preserved.
func ParseRef(ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	trimmed = strings.TrimPrefix(trimmed, refScheme)
	trimmed = strings.TrimPrefix(trimmed, "/ipfs/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty reference", ErrMalformedReference)
	}
	// Split off any path suffix before CID validation
	cidPart, subPath, hasPath := strings.Cut(trimmed, "/")
	if _, err := cid.Decode(cidPart); err != nil {
		return "", fmt.Errorf(
			"%w: %q: %s",
			ErrMalformedReference,
			ref,
			err,
		)
	}
	if hasPath {
		return cidPart + "/" + subPath, nil
	}
	return cidPart, nil
}

// Resolver maps content references onto a ranked list of gateway URLs.
// A Resolver is stateless and safe for concurrent use.
type Resolver struct {
	gateways []string
}

// NewResolver creates a Resolver with the given ranked gateway base URLs.
// Base URLs must end with the path prefix under which content hashes are
// served (e.g. "https://ipfs.io/ipfs/"). A nil or empty list selects
// DefaultGateways.
func NewResolver(gateways []string) *Resolver {
	if len(gateways) == 0 {
		gateways = DefaultGateways
	}
	normalized := make([]string, len(gateways))
	for i, gw := range gateways {
		if !strings.HasSuffix(gw, "/") {
			gw = gw + "/"
		}
		normalized[i] = gw
	}
	return &Resolver{gateways: normalized}
}

// GatewayCount returns the number of configured gateways.
func (r *Resolver) GatewayCount() int {
	return len(r.gateways)
}

// Resolve returns the ordered list of candidate URLs for a content
// reference. The result is deterministic for a given reference and
// gateway configuration, and non-empty for any well-formed reference.
func (r *Resolver) Resolve(ref string) ([]string, error) {
	hash, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(r.gateways))
	for i, gw := range r.gateways {
		urls[i] = gw + hash
	}
	return urls, nil
}
