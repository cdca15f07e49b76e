package papersources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/snowball-review/internal/domain"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 16 << 20

// HTTPClientConfig configures the HTTP client shared by provider adapters.
type HTTPClientConfig struct {
	// Source names the provider in errors.
	Source string

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key sent in APIKeyHeader.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g. "x-api-key").
	APIKeyHeader string

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// HTTPClient wraps http.Client with a per-provider rate limiter and maps
// HTTP failures onto the domain error taxonomy. It performs a single attempt
// per call; retry and fallback policy belongs to the aggregator.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new rate limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "snowball-review/1.0"
	}
	if cfg.Source == "" {
		cfg.Source = "provider"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// RateLimiter exposes the client's limiter.
func (c *HTTPClient) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// Do waits for the rate limiter, sets the User-Agent and API key headers
// and sends the request. Transport failures are classified: deadlines
// become domain.ErrTimeout, cancellation is returned as the context error,
// anything else is wrapped as domain.ErrServiceUnavailable.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, c.transportError(req.Context(), fmt.Errorf("rate limiter wait: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.transportError(req.Context(), err)
	}
	return resp, nil
}

// Get performs a GET request and returns the body of a 2xx response.
// Non-2xx responses are converted with CheckResponse.
func (c *HTTPClient) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.CheckResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(ctx, fmt.Errorf("read response: %w", err))
	}
	return body, nil
}

// GetJSON performs a GET request and decodes a JSON response into dest.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, dest any) error {
	body, err := c.Get(ctx, url, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return domain.NewExternalAPIError(c.config.Source, http.StatusOK,
			"failed to decode response", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}
	return nil
}

// CheckResponse maps a non-2xx response onto the domain error taxonomy:
//   - 404 becomes *domain.NotFoundError
//   - 429 becomes *domain.RateLimitError honoring Retry-After
//   - 401 and 403 wrap domain.ErrUnauthorized
//   - 5xx wrap domain.ErrServiceUnavailable
//   - other statuses wrap domain.ErrInvalidInput
func (c *HTTPClient) CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFoundError("paper", resp.Request.URL.Path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.NewRateLimitError(c.config.Source, RetryAfter(resp, 0))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.NewExternalAPIError(c.config.Source, resp.StatusCode, message, domain.ErrUnauthorized)
	case resp.StatusCode >= 500:
		return domain.NewExternalAPIError(c.config.Source, resp.StatusCode, message, domain.ErrServiceUnavailable)
	default:
		return domain.NewExternalAPIError(c.config.Source, resp.StatusCode, message, domain.ErrInvalidInput)
	}
}

// RetryAfter parses the Retry-After header as seconds or an HTTP date,
// returning fallback when it is absent or unusable.
func RetryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return fallback
	}
	if t, err := http.ParseTime(value); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return fallback
}

func (c *HTTPClient) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %w", c.config.Source, domain.ErrTimeout, err)
	}
	return domain.NewExternalAPIError(c.config.Source, 0, err.Error(),
		fmt.Errorf("%w: %w", domain.ErrServiceUnavailable, err))
}
