package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	withType := &APIError{Provider: "openai", StatusCode: 429, Message: "rate limit exceeded", Type: "rate_limit_error"}
	assert.Equal(t, "openai: API error (status 429, type rate_limit_error): rate limit exceeded", withType.Error())

	plain := &APIError{Provider: "anthropic", StatusCode: 500, Message: "internal server error", Code: "ignored"}
	assert.Equal(t, "anthropic: API error (status 500): internal server error", plain.Error())
}

func TestAPIError_IsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		statusCode int
		want       bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{599, true},
		{400, false},
		{401, false},
		{404, false},
		{200, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.statusCode), func(t *testing.T) {
			t.Parallel()
			err := &APIError{Provider: "test", StatusCode: tt.statusCode}
			assert.Equal(t, tt.want, err.IsTransient())
		})
	}
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	assert.True(t, isTransientError(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 502})))
	assert.False(t, isTransientError(&APIError{StatusCode: 401}))
	assert.False(t, isTransientError(errors.New("plain")))
}

func TestRetriesExhaustedError(t *testing.T) {
	t.Parallel()

	inner := &APIError{Provider: "openai", StatusCode: 503, Message: "down"}
	err := &RetriesExhaustedError{Provider: "openai", Retries: 2, Err: inner}

	assert.Contains(t, err.Error(), "exhausted 2 retries")
	assert.ErrorIs(t, err, inner)
}
