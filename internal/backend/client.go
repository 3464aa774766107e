// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the RAG chat backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/VINKAS7/ragchat/internal/model"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where the backend listens by default.
const DefaultBaseURL = "http://localhost:3000"

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://localhost:3000)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// StreamTimeout bounds the wait for response headers on streaming and
	// upload requests (default: 60s). The body itself is unbounded.
	StreamTimeout time.Duration

	// MaxRetries for transient failures of idempotent requests (default: 2,
	// negative disables retries)
	MaxRetries int

	// RetryDelay between retries (default: 500ms)
	RetryDelay time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:       DefaultBaseURL,
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		MaxRetries:    2,
		RetryDelay:    500 * time.Millisecond,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the backend.
//
// The Client is safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = defaults.StreamTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.StreamTimeout

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// No overall timeout: a response stream lasts as long as generation.
		streamClient: &http.Client{
			Transport: transport,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger used for request tracing.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that the backend is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/", nil)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(c.config.BaseURL, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &ClientError{
			Type:       ErrTypeStatus,
			Message:    "unexpected status from backend: " + resp.Status,
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

// =============================================================================
// STREAMING
// =============================================================================

// OpenStream starts a streaming response for a prompt and returns its body.
// The caller must close the body. Cancelling ctx aborts the read.
func (c *Client) OpenStream(ctx context.Context, sreq StreamRequest) (io.ReadCloser, error) {
	if err := sreq.Validate(); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "invalid stream request", Cause: err}
	}

	body, err := json.Marshal(sreq)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/conversation/get_response_stream", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, transportError(c.config.BaseURL, err)
	}
	c.logger.Debug("HTTP_STREAM_OPEN",
		"conversation", sreq.ConversationID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		return nil, statusError("stream request", resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}

	return resp.Body, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// GetConversation fetches a stored conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationResponse, error) {
	if id == "" {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "conversation id is required"}
	}

	data, err := c.getBytes(ctx, "get conversation", "/conversation/get_conversation/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	resp, err := decodeConversation(data)
	if err != nil {
		return nil, invalidResponse("get conversation", err)
	}
	return resp, nil
}

// GetHistory lists stored conversations.
func (c *Client) GetHistory(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.getJSON(ctx, "get history", "/conversation/get_history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteConversation removes a stored conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if id == "" {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "conversation id is required"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.config.BaseURL+"/conversation/delete/"+url.PathEscape(id), nil)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(c.config.BaseURL, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("delete conversation", resp)
	}
	return nil
}

// =============================================================================
// MODELS AND COLLECTIONS
// =============================================================================

// ListModels returns the names of the models the backend can serve.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, "list models", "/api/get_ollama_models", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCollections returns the names of the document collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, "list collections", "/api/get_collections", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrCollectionName is returned for names that cannot form a URL segment.
var ErrCollectionName = errors.New("collection name must be non-empty and contain no path separators")

// ValidateCollectionName checks a new collection name.
func ValidateCollectionName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ErrCollectionName
	}
	return nil
}

// CreateCollection uploads files into a new collection. The backend indexes
// them before responding, so this can take a while; ctx bounds it.
func (c *Client) CreateCollection(ctx context.Context, name string, files []UploadFile) (*CreateCollectionResponse, error) {
	if err := ValidateCollectionName(name); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "invalid collection name", Cause: err}
	}
	if len(files) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "at least one file is required"}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", filepath.Base(f.Name))
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to build upload", Cause: err}
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to read " + f.Name, Cause: err}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to build upload", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/create_collection/"+url.PathEscape(strings.TrimSpace(name)), &body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, transportError(c.config.BaseURL, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("create collection", resp)
	}

	var result CreateCollectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, invalidResponse("create collection", err)
	}
	if !isSuccess(result.Status) {
		return nil, &ClientError{Type: ErrTypeStatus, Message: fmt.Sprintf("create collection failed: status %q", result.Status)}
	}
	return &result, nil
}

// =============================================================================
// PROMPT TEMPLATES
// =============================================================================

// ListPromptTemplates returns the saved prompt templates.
func (c *Client) ListPromptTemplates(ctx context.Context) ([]PromptTemplate, error) {
	var out templatesResponse
	if err := c.getJSON(ctx, "list templates", "/conversation/get_all_prompt_templates", &out); err != nil {
		return nil, err
	}
	if !isSuccess(out.Status) {
		msg := "failed to fetch templates"
		if out.Detail != "" {
			msg = out.Detail
		}
		return nil, &ClientError{Type: ErrTypeStatus, Message: msg}
	}
	return out.Templates, nil
}

// SavePromptTemplate creates or replaces a prompt template.
func (c *Client) SavePromptTemplate(ctx context.Context, tmpl PromptTemplate) error {
	if err := tmpl.Validate(); err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "invalid template", Cause: err}
	}

	body, err := json.Marshal(savePromptTemplateRequest{
		TemplateName: strings.TrimSpace(tmpl.Name),
		Template:     tmpl.Template,
	})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/conversation/new_prompt_template", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(c.config.BaseURL, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("save template", resp)
	}

	var result statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return invalidResponse("save template", err)
	}
	if !isSuccess(result.Status) {
		msg := "failed to save template"
		if result.Detail != "" {
			msg = result.Detail
		}
		return &ClientError{Type: ErrTypeStatus, Message: msg}
	}
	return nil
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	data, err := c.getBytes(ctx, op, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return invalidResponse(op, err)
	}
	return nil
}

// getBytes performs an idempotent GET, retrying transport failures.
func (c *Client) getBytes(ctx context.Context, op, path string) ([]byte, error) {
	attempts := 1
	if c.config.MaxRetries > 0 {
		attempts += c.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, transportError(c.config.BaseURL, ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
		}

		data, retry, err := c.getOnce(ctx, op, path)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.logger.Debug("HTTP_RETRY", "op", op, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, op, path string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return nil, false, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cerr := transportError(c.config.BaseURL, err)
		return nil, IsNotRunning(cerr) && ctx.Err() == nil, cerr
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retry := resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout
		return nil, retry, statusError(op, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, invalidResponse(op, err)
	}
	return data, false, nil
}

// drainAndClose lets the connection be reused.
func drainAndClose(r io.ReadCloser) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}
