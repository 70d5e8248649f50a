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

package metadata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaindeed/deedsync/gateway"
	"github.com/chaindeed/deedsync/metadata"
)

const testRef = "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

const validBody = `{
	"name": "Diploma",
	"description": "University diploma certificate",
	"image": "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
	"attributes": [{"trait_type": "type", "value": "diploma"}]
}`

type gatewayStub struct {
	server *httptest.Server
	hits   atomic.Int64
}

func newGatewayStub(
	t *testing.T,
	handler http.HandlerFunc,
) *gatewayStub {
	t.Helper()
	stub := &gatewayStub{}
	stub.server = httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stub.hits.Add(1)
			handler(w, r)
		}),
	)
	t.Cleanup(stub.server.Close)
	return stub
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func serveStatus(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

func newTestClient(
	t *testing.T,
	stubs ...*gatewayStub,
) *metadata.Client {
	t.Helper()
	gateways := make([]string, len(stubs))
	for i, stub := range stubs {
		gateways[i] = stub.server.URL + "/ipfs/"
	}
	return metadata.NewClient(gateway.NewResolver(gateways))
}

func TestFetchFirstGateway(t *testing.T) {
	gw := newGatewayStub(t, serveJSON(validBody))
	client := newTestClient(t, gw)

	md, gwIdx, err := client.Fetch(context.Background(), testRef, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, gwIdx)
	assert.Equal(t, "Diploma", md.Name)
	assert.Equal(t, "University diploma certificate", md.Description)
	require.Len(t, md.Attributes, 1)
	assert.Equal(t, "type", md.Attributes[0].TraitType)
	assert.Equal(t, int64(1), gw.hits.Load())
}

func TestFetchFailover(t *testing.T) {
	gwA := newGatewayStub(t, serveStatus(http.StatusBadGateway))
	gwB := newGatewayStub(t, serveStatus(http.StatusNotFound))
	gwC := newGatewayStub(t, serveJSON(validBody))
	client := newTestClient(t, gwA, gwB, gwC)

	md, gwIdx, err := client.Fetch(context.Background(), testRef, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, gwIdx)
	assert.Equal(t, "Diploma", md.Name)
	assert.Equal(t, int64(1), gwA.hits.Load())
	assert.Equal(t, int64(1), gwB.hits.Load())
	assert.Equal(t, int64(1), gwC.hits.Load())
}

func TestFetchStartIndexPinning(t *testing.T) {
	gwA := newGatewayStub(t, serveStatus(http.StatusBadGateway))
	gwB := newGatewayStub(t, serveJSON(validBody))
	client := newTestClient(t, gwA, gwB)

	// Starting at the pinned index skips the failing gateway entirely
	md, gwIdx, err := client.Fetch(context.Background(), testRef, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, gwIdx)
	assert.Equal(t, "Diploma", md.Name)
	assert.Equal(t, int64(0), gwA.hits.Load())
	assert.Equal(t, int64(1), gwB.hits.Load())
}

func TestFetchAllFail(t *testing.T) {
	gwA := newGatewayStub(t, serveStatus(http.StatusBadGateway))
	gwB := newGatewayStub(t, serveStatus(http.StatusBadGateway))
	client := newTestClient(t, gwA, gwB)

	md, _, err := client.Fetch(context.Background(), testRef, 0)
	assert.Nil(t, md)
	require.Error(t, err)
	var fetchErr *metadata.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, metadata.FailureUnreachable, fetchErr.Reason)
	assert.Equal(t, 2, fetchErr.TriedGateways)
	// One sweep is one hit per gateway, never more
	assert.Equal(t, int64(1), gwA.hits.Load())
	assert.Equal(t, int64(1), gwB.hits.Load())
}

func TestFetchInvalidShape(t *testing.T) {
	gw := newGatewayStub(t, serveJSON(`{"foo": "bar"}`))
	client := newTestClient(t, gw)

	md, _, err := client.Fetch(context.Background(), testRef, 0)
	assert.Nil(t, md)
	var fetchErr *metadata.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, metadata.FailureInvalidShape, fetchErr.Reason)
}

func TestFetchMalformedRef(t *testing.T) {
	gw := newGatewayStub(t, serveJSON(validBody))
	client := newTestClient(t, gw)

	md, _, err := client.Fetch(context.Background(), "ipfs://nope", 0)
	assert.Nil(t, md)
	assert.ErrorIs(t, err, gateway.ErrMalformedReference)
	assert.Equal(t, int64(0), gw.hits.Load())
}

func TestMetadataValid(t *testing.T) {
	testDefs := []struct {
		md       metadata.TokenMetadata
		name     string
		expected bool
	}{
		{
			name:     "name only",
			md:       metadata.TokenMetadata{Name: "Deed"},
			expected: true,
		},
		{
			name:     "image only",
			md:       metadata.TokenMetadata{Image: "ipfs://x"},
			expected: true,
		},
		{
			name:     "empty",
			md:       metadata.TokenMetadata{Description: "only desc"},
			expected: false,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			assert.Equal(t, testDef.expected, testDef.md.Valid())
		})
	}
}
