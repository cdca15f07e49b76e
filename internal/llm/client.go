// Package llm provides minimal chat completion clients for the OpenAI and
// Anthropic APIs, used by the LLM relevance scorer.
package llm

import (
	"context"
	"errors"
	"time"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest asks the model for a single completion.
type CompletionRequest struct {
	// System is the system prompt.
	System string
	// Messages are the conversation turns, usually one user message.
	Messages []Message
	// MaxTokens bounds the response length. Zero uses the client default.
	MaxTokens int
	// JSON asks the provider for a JSON response when it supports it.
	JSON bool
}

// CompletionResponse is a model answer with token accounting.
type CompletionResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client sends chat completion requests to one provider.
type Client interface {
	// Complete returns the model's answer. Transient API errors are retried
	// by the client before an error is returned.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Provider returns the provider name ("openai", "anthropic").
	Provider() string

	// Model returns the model identifier.
	Model() string
}

// retry calls fn up to maxRetries+1 times while it fails transiently,
// waiting delay*attempt between calls.
func retry(ctx context.Context, provider string, maxRetries int, delay time.Duration, fn func() (*CompletionResponse, error)) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay * time.Duration(attempt)):
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, &RetriesExhaustedError{Provider: provider, Retries: maxRetries, Err: lastErr}
}
