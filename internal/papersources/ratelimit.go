package papersources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket guarding one provider. It is safe for
// concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts of up to burst requests. A non-positive burst is raised to 1.
//
// Typical settings:
//   - PubMed without an API key: NewRateLimiter(3, 3)
//   - Semantic Scholar with an API key: NewRateLimiter(1, 1)
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// NewWindowRateLimiter allows requests per window, e.g. 100 per 5 minutes,
// with the whole window's allowance available as a burst.
func NewWindowRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests < 1 || window <= 0 {
		return NewRateLimiter(float64(rate.Inf), 1)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests),
	}
}

// Wait blocks until a request is allowed or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow consumes a token if one is available without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate changes the sustained rate, keeping the burst size.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Rate returns the sustained rate in requests per second.
func (r *RateLimiter) Rate() float64 {
	return float64(r.limiter.Limit())
}

// Burst returns the bucket size.
func (r *RateLimiter) Burst() int {
	return r.limiter.Burst()
}

// Tokens returns the number of currently available tokens.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
