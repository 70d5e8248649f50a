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

// Package metadata fetches and validates certificate token metadata from
// content-addressed storage gateways.
package metadata

import (
	"encoding/json"
	"fmt"
)

// Attribute is a single trait entry in token metadata. Value may be a
// string or a number depending on the trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// TokenMetadata is the descriptive JSON document referenced by a token
// URI. Fetched, never authored by this engine.
type TokenMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Valid reports whether the document meets the minimum structural
// requirement: a name or an image must be present.
func (m *TokenMetadata) Valid() bool {
	return m != nil && (m.Name != "" || m.Image != "")
}

// parseMetadata decodes and structurally validates a metadata document.
func parseMetadata(data []byte) (*TokenMetadata, error) {
	var md TokenMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if !md.Valid() {
		return nil, fmt.Errorf(
			"metadata missing both name and image",
		)
	}
	return &md, nil
}
