package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnthropicTestClient(t *testing.T, handler http.HandlerFunc, maxRetries int) *AnthropicClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewAnthropicClient(AnthropicConfig{APIKey: "test-key", Model: "claude-test", BaseURL: server.URL}, 0, 5*time.Second, maxRetries)
	c.retryDelay = time.Millisecond
	return c
}

func writeMessages(w http.ResponseWriter, blocks ...contentBlock) {
	w.Header().Set("Content-Type", "application/json")
	resp := messagesResponse{ID: "msg_1", Model: "claude-test", Content: blocks}
	resp.Usage.InputTokens = 90
	resp.Usage.OutputTokens = 6
	_ = json.NewEncoder(w).Encode(resp)
}

func TestAnthropicClient_Complete(t *testing.T) {
	t.Parallel()

	var received messagesRequest
	var headers http.Header
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		writeMessages(w, contentBlock{Type: "text", Text: "[0.9]"})
	}, 0)

	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:   "score papers",
		Messages: []Message{{Role: "user", Content: "papers"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "[0.9]", resp.Content)
	assert.Equal(t, 90, resp.InputTokens)
	assert.Equal(t, 6, resp.OutputTokens)

	assert.Equal(t, "test-key", headers.Get("x-api-key"))
	assert.Equal(t, anthropicAPIVersion, headers.Get("anthropic-version"))
	assert.Equal(t, "score papers", received.System)
	assert.Equal(t, defaultAnthropicMaxTokens, received.MaxTokens)
	require.Len(t, received.Messages, 1)
}

func TestAnthropicClient_SkipsNonTextBlocks(t *testing.T) {
	t.Parallel()

	c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeMessages(w, contentBlock{Type: "tool_use"}, contentBlock{Type: "text", Text: "[0.1]"})
	}, 0)

	resp, err := c.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "[0.1]", resp.Content)
}

func TestAnthropicClient_NoTextBlocks(t *testing.T) {
	t.Parallel()

	c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeMessages(w)
	}, 0)

	_, err := c.Complete(context.Background(), CompletionRequest{})
	assert.ErrorContains(t, err, "no text content")
}

func TestAnthropicClient_APIError(t *testing.T) {
	t.Parallel()

	c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}`))
	}, 2)

	_, err := c.Complete(context.Background(), CompletionRequest{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
	assert.Equal(t, "max_tokens too large", apiErr.Message)
	assert.False(t, apiErr.IsTransient())
}

func TestAnthropicClient_RetryThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeMessages(w, contentBlock{Type: "text", Text: "[0.4]"})
	}, 2)

	resp, err := c.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "[0.4]", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicClient_ContextCancelled(t *testing.T) {
	t.Parallel()

	c := newAnthropicTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 5)
	c.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: "https://example.test/"}, 0, 0, 0)
	assert.Equal(t, "anthropic", c.Provider())
	assert.Equal(t, defaultAnthropicModel, c.Model())
	assert.Equal(t, "https://example.test", c.baseURL)
}
