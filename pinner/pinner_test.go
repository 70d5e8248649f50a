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

package pinner

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaindeed/deedsync/metadata"
)

const (
	testImageHash = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	testMetaHash  = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

type pinataStub struct {
	fileRequests []string
	jsonBodies   [][]byte
	authHeaders  []string
}

func (p *pinataStub) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/pinning/pinFileToIPFS",
		func(w http.ResponseWriter, r *http.Request) {
			p.authHeaders = append(p.authHeaders, r.Header.Get("Authorization"))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			p.fileRequests = append(p.fileRequests, header.Filename)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"IpfsHash":"` + testImageHash + `"}`))
		},
	)
	mux.HandleFunc(
		"/pinning/pinJSONToIPFS",
		func(w http.ResponseWriter, r *http.Request) {
			p.authHeaders = append(p.authHeaders, r.Header.Get("Authorization"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			p.jsonBodies = append(p.jsonBodies, body)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"IpfsHash":"` + testMetaHash + `"}`))
		},
	)
	return mux
}

func TestUploadFile(t *testing.T) {
	stub := &pinataStub{}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()
	client := NewClient("test-jwt", WithBaseURL(server.URL))

	ref, err := client.UploadFile(
		context.Background(),
		strings.NewReader("fake image bytes"),
		"deed.png",
	)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://"+testImageHash, ref)
	require.Len(t, stub.fileRequests, 1)
	assert.Equal(t, "deed.png", stub.fileRequests[0])
	require.Len(t, stub.authHeaders, 1)
	assert.Equal(t, "Bearer test-jwt", stub.authHeaders[0])
}

func TestUploadCertificate(t *testing.T) {
	stub := &pinataStub{}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()
	client := NewClient("test-jwt", WithBaseURL(server.URL))

	tokenURI, err := client.UploadCertificate(
		context.Background(),
		strings.NewReader("fake image bytes"),
		"deed.png",
		"Plot 12",
		"deed: plot 12",
		[]metadata.Attribute{
			{TraitType: "region", Value: "north"},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://"+testMetaHash, tokenURI)

	// The pinned metadata document references the pinned image
	require.Len(t, stub.jsonBodies, 1)
	var doc metadata.TokenMetadata
	require.NoError(t, json.Unmarshal(stub.jsonBodies[0], &doc))
	assert.Equal(t, "Plot 12", doc.Name)
	assert.Equal(t, "ipfs://"+testImageHash, doc.Image)
	require.Len(t, doc.Attributes, 1)
	assert.Equal(t, "region", doc.Attributes[0].TraitType)
}

func TestUploadRejected(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid token"}`))
		}),
	)
	defer server.Close()
	client := NewClient("bad-jwt", WithBaseURL(server.URL))

	_, err := client.UploadJSON(context.Background(), map[string]string{"a": "b"})
	var uploadErr UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, http.StatusUnauthorized, uploadErr.StatusCode)
	assert.Equal(t, "/pinning/pinJSONToIPFS", uploadErr.Endpoint)
}

func TestUploadMissingHash(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}),
	)
	defer server.Close()
	client := NewClient("test-jwt", WithBaseURL(server.URL))

	_, err := client.UploadJSON(context.Background(), map[string]string{"a": "b"})
	var uploadErr UploadError
	require.ErrorAs(t, err, &uploadErr)
}
