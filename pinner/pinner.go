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

// Package pinner uploads certificate content to a Pinata-compatible
// pinning service. The sync core never writes content; only the
// submission flow uses this.
package pinner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/chaindeed/deedsync/metadata"
)

// DefaultBaseURL is the hosted Pinata pinning API.
const DefaultBaseURL = "https://api.pinata.cloud"

const defaultUploadTimeout = 60 * time.Second

// UploadError reports a rejected or failed upload.
type UploadError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e UploadError) Error() string {
	return fmt.Sprintf(
		"upload to %s failed: status %d: %s",
		e.Endpoint,
		e.StatusCode,
		e.Body,
	)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the pinning service base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for uploads.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to a Pinata-compatible pinning API.
type Client struct {
	baseURL    string
	jwt        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client authenticating with the given JWT.
func NewClient(jwt string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		jwt:     jwt,
		httpClient: &http.Client{
			Timeout: defaultUploadTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return c
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// UploadFile pins a file and returns its content reference.
func (c *Client) UploadFile(
	ctx context.Context,
	r io.Reader,
	filename string,
) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	return c.pin(
		ctx,
		"/pinning/pinFileToIPFS",
		writer.FormDataContentType(),
		&body,
	)
}

// UploadJSON pins an arbitrary JSON document and returns its content
// reference.
func (c *Client) UploadJSON(ctx context.Context, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json content: %w", err)
	}
	return c.pin(
		ctx,
		"/pinning/pinJSONToIPFS",
		"application/json",
		bytes.NewReader(payload),
	)
}

// UploadCertificate pins a certificate image and its metadata document
// and returns the token URI for the metadata.
func (c *Client) UploadCertificate(
	ctx context.Context,
	file io.Reader,
	filename string,
	name string,
	description string,
	attrs []metadata.Attribute,
) (string, error) {
	imageRef, err := c.UploadFile(ctx, file, filename)
	if err != nil {
		return "", fmt.Errorf("pin certificate image: %w", err)
	}
	doc := metadata.TokenMetadata{
		Name:        name,
		Description: description,
		Image:       imageRef,
		Attributes:  attrs,
	}
	tokenURI, err := c.UploadJSON(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("pin certificate metadata: %w", err)
	}
	c.logger.Info(
		"certificate pinned",
		"component", "pinner",
		"image", imageRef,
		"token_uri", tokenURI,
	)
	return tokenURI, nil
}

func (c *Client) pin(
	ctx context.Context,
	endpoint string,
	contentType string,
	body io.Reader,
) (string, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+endpoint,
		body,
	)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", UploadError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	var pinResp pinResponse
	if err := json.Unmarshal(respBody, &pinResp); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if pinResp.IpfsHash == "" {
		return "", UploadError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       "missing content hash in response",
		}
	}
	return "ipfs://" + pinResp.IpfsHash, nil
}
