package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestProjectContext(t *testing.T) {
	t.Run("stores and retrieves project", func(t *testing.T) {
		ctx := WithProject(context.Background(), "llm-review")
		assert.Equal(t, "llm-review", ProjectFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", ProjectFromContext(context.Background()))
	})
}

func TestLoggerFromContext(t *testing.T) {
	t.Run("enriches stored logger", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), zerolog.New(&buf))
		ctx = WithRequestID(ctx, "req-1")
		ctx = WithProject(ctx, "llm-review")

		logger := LoggerFromContext(ctx)
		logger.Info().Msg("hello")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "llm-review", entry["project"])
	})

	t.Run("omits absent fields", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), zerolog.New(&buf))

		logger := LoggerFromContext(ctx)
		logger.Info().Msg("hello")

		entry := decodeEntry(t, &buf)
		assert.NotContains(t, entry, "request_id")
		assert.NotContains(t, entry, "project")
	})

	t.Run("without stored logger does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			logger := LoggerFromContext(context.Background())
			logger.Info().Msg("discarded")
		})
	})
}
