package papersources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter(t *testing.T) {
	t.Run("allows burst then denies", func(t *testing.T) {
		rl := NewRateLimiter(3, 3)

		require.NotNil(t, rl)
		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow(), "request %d within burst", i+1)
		}
		assert.False(t, rl.Allow())
	})

	t.Run("raises non-positive burst to one", func(t *testing.T) {
		rl := NewRateLimiter(1, 0)
		assert.Equal(t, 1, rl.Burst())
	})

	t.Run("reports rate", func(t *testing.T) {
		rl := NewRateLimiter(2.5, 1)
		assert.InDelta(t, 2.5, rl.Rate(), 1e-9)
	})
}

func TestNewWindowRateLimiter(t *testing.T) {
	t.Run("window allowance is the burst", func(t *testing.T) {
		rl := NewWindowRateLimiter(100, 5*time.Minute)

		assert.Equal(t, 100, rl.Burst())
		assert.InDelta(t, 100.0/300.0, rl.Rate(), 1e-9)
	})

	t.Run("invalid window is unlimited", func(t *testing.T) {
		rl := NewWindowRateLimiter(0, time.Second)
		for i := 0; i < 50; i++ {
			assert.True(t, rl.Allow())
		}
	})
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Run("returns immediately within burst", func(t *testing.T) {
		rl := NewRateLimiter(1, 2)

		start := time.Now()
		require.NoError(t, rl.Wait(context.Background()))
		require.NoError(t, rl.Wait(context.Background()))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(0.01, 1)
		require.True(t, rl.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		assert.Error(t, rl.Wait(ctx))
	})
}

func TestRateLimiter_SetRate(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.SetRate(50)

	assert.InDelta(t, 50, rl.Rate(), 1e-9)
	assert.Equal(t, 1, rl.Burst())
}
