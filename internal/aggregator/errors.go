package aggregator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/helixir/snowball-review/internal/domain"
)

// Category classifies a provider error into the outcome that drives the
// retry and fallback policy.
type Category int

const (
	// Transient errors are retried with exponential backoff, then the next
	// provider is tried.
	Transient Category = iota

	// NotFound is a definitive negative: no retry and no fallback.
	NotFound

	// Unsupported means the provider cannot serve this lookup (no usable
	// identifier, no citation graph). The next provider is tried at once.
	Unsupported

	// Permanent errors are not retried; the next provider is tried.
	Permanent

	// Cancelled means the caller's context ended. The lookup stops.
	Cancelled
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case Transient:
		return "transient"
	case NotFound:
		return "not_found"
	case Unsupported:
		return "unsupported"
	case Permanent:
		return "permanent"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// transientSubstrings mark unstructured errors that are worth retrying.
var transientSubstrings = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"rate limit",
	"service unavailable",
	"temporary",
	"deadline exceeded",
	"eof",
}

// permanentSubstrings mark unstructured errors that will not go away on retry.
var permanentSubstrings = []string{
	"unauthorized",
	"forbidden",
	"bad request",
	"invalid input",
	"invalid request",
	"not found",
}

// Classify inspects err and returns its Category.
//
// Classification priority:
//  1. Caller cancellation
//  2. Domain sentinels for not-found and unsupported lookups
//  3. Domain sentinels for transient and permanent failures
//  4. Structured provider errors by HTTP status
//  5. Network errors
//  6. Error message substrings, transient first
//  7. Default: Transient
func Classify(err error) Category {
	if err == nil {
		return Permanent
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCancelled) {
		return Cancelled
	}

	if errors.Is(err, domain.ErrNotFound) {
		return NotFound
	}
	if errors.Is(err, domain.ErrNoIdentifier) || errors.Is(err, domain.ErrUnsupported) {
		return Unsupported
	}

	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable) ||
		errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrConfiguration) {
		return Permanent
	}
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return Permanent
	}

	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return Transient
		}
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}

	return Transient
}
