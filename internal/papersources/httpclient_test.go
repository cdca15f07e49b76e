package papersources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
)

func testClient(source string) *HTTPClient {
	return NewHTTPClient(HTTPClientConfig{
		Source:    source,
		RateLimit: 1000,
		BurstSize: 100,
		Timeout:   2 * time.Second,
	})
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{})

		require.NotNil(t, client)
		assert.Equal(t, 30*time.Second, client.client.Timeout)
		assert.Equal(t, "snowball-review/1.0", client.config.UserAgent)
		assert.Equal(t, float64(10), client.config.RateLimit)
		assert.Equal(t, 1, client.RateLimiter().Burst())
		assert.Equal(t, "provider", client.config.Source)
	})

	t.Run("keeps custom config", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{
			Source:       "semantic_scholar",
			Timeout:      15 * time.Second,
			RateLimit:    5,
			BurstSize:    3,
			UserAgent:    "TestAgent/1.0",
			APIKey:       "test-key",
			APIKeyHeader: "x-api-key",
		})

		assert.Equal(t, 15*time.Second, client.client.Timeout)
		assert.Equal(t, 3, client.RateLimiter().Burst())
		assert.Equal(t, "TestAgent/1.0", client.config.UserAgent)
	})
}

func TestHTTPClient_Headers(t *testing.T) {
	var gotAgent, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{
		RateLimit:    100,
		BurstSize:    10,
		UserAgent:    "TestAgent/2.0",
		APIKey:       "secret",
		APIKeyHeader: "x-api-key",
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.GetJSON(context.Background(), server.URL, &out))
	assert.True(t, out.OK)
	assert.Equal(t, "TestAgent/2.0", gotAgent)
	assert.Equal(t, "secret", gotKey)
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  map[string]string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "404 is not found",
			status:  http.StatusNotFound,
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "429 is rate limited with retry-after",
			status:  http.StatusTooManyRequests,
			header:  map[string]string{"Retry-After": "7"},
			wantErr: domain.ErrRateLimited,
			check: func(t *testing.T, err error) {
				var rle *domain.RateLimitError
				require.True(t, errors.As(err, &rle))
				assert.Equal(t, 7*time.Second, rle.RetryAfter)
				assert.Equal(t, "test", rle.Source)
			},
		},
		{
			name:    "401 is unauthorized",
			status:  http.StatusUnauthorized,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "403 is unauthorized",
			status:  http.StatusForbidden,
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "503 is unavailable",
			status:  http.StatusServiceUnavailable,
			wantErr: domain.ErrServiceUnavailable,
			check: func(t *testing.T, err error) {
				var apiErr *domain.ExternalAPIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
				assert.Equal(t, "busy", apiErr.Message)
			},
		},
		{
			name:    "400 is invalid input",
			status:  http.StatusBadRequest,
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte("busy"))
			}))
			defer server.Close()

			_, err := testClient("test").Get(context.Background(), server.URL+"/paper/x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestHTTPClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	var out map[string]any
	err := testClient("test").GetJSON(context.Background(), server.URL, &out)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHTTPClient_TransportErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()

		client := NewHTTPClient(HTTPClientConfig{RateLimit: 100, BurstSize: 10, Timeout: 50 * time.Millisecond})
		_, err := client.Get(context.Background(), server.URL, nil)
		assert.ErrorIs(t, err, domain.ErrTimeout)
	})

	t.Run("connection refused is unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := testClient("test").Get(context.Background(), url, nil)
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	})

	t.Run("cancelled context is returned as is", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := testClient("test").Get(ctx, server.URL, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)
	})
}

func TestRetryAfter(t *testing.T) {
	resp := func(v string) *http.Response {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		return &http.Response{Header: h}
	}

	assert.Equal(t, 3*time.Second, RetryAfter(resp("3"), time.Second))
	assert.Equal(t, time.Second, RetryAfter(resp(""), time.Second))
	assert.Equal(t, time.Second, RetryAfter(resp("0"), time.Second))
	assert.Equal(t, time.Second, RetryAfter(resp("soon"), time.Second))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	got := RetryAfter(resp(future), 0)
	assert.Greater(t, got, 50*time.Second)
}
