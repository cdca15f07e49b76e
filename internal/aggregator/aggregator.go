// Package aggregator fans bibliographic lookups out over the configured
// providers in priority order.
//
// A lookup walks the providers one at a time. A definitive not-found answer
// ends the lookup. Transient failures are retried with exponential backoff
// under a per-call timeout, then the next provider is tried. Permanent
// failures and providers that cannot serve the lookup fall through at once.
// A lookup that fails on every provider is reported to the caller, counted,
// and never aborts a batch.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/observability"
	"github.com/helixir/snowball-review/internal/papersources"
)

// Operation names used in logs, stats and metrics.
const (
	OpResolve    = "resolve"
	OpReferences = "references"
	OpCitations  = "citations"
)

// Config holds the retry and concurrency policy.
type Config struct {
	// MaxConcurrency bounds in-flight lookups in FetchNeighbors.
	MaxConcurrency int

	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration

	// MaxAttempts is the number of calls made to one provider for one
	// lookup, including the first.
	MaxAttempts int

	// InitialInterval is the first backoff wait.
	InitialInterval time.Duration

	// MaxInterval caps the exponential backoff wait.
	MaxInterval time.Duration

	// MaxRetryAfter caps how long a provider's Retry-After hint is honored.
	MaxRetryAfter time.Duration
}

// DefaultConfig returns the aggregator defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  5,
		CallTimeout:     30 * time.Second,
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetryAfter:   60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = max(d.MaxInterval, c.InitialInterval)
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = d.MaxRetryAfter
	}
	return c
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// Aggregator implements ordered provider fallback with retries.
// It is safe for concurrent use.
type Aggregator struct {
	registry *papersources.Registry
	cfg      Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
	stats    *statsRecorder
}

// New creates an aggregator over the registry's enabled providers.
func New(registry *papersources.Registry, cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   zerolog.Nop(),
		stats:    newStatsRecorder(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Resolve looks a paper up by DOI, arXiv id or title.
func (a *Aggregator) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	if q.Value == "" {
		return nil, domain.NewValidationError("query", "is empty")
	}
	providers := a.registry.Enabled()
	return lookup(ctx, a, OpResolve, providers, func(ctx context.Context, p papersources.Provider) (*domain.Paper, error) {
		return p.Resolve(ctx, q)
	})
}

// GetReferences returns the papers cited by p as provider records.
func (a *Aggregator) GetReferences(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	return lookup(ctx, a, OpReferences, a.registry.GraphProviders(), func(ctx context.Context, gp papersources.GraphProvider) ([]*domain.Paper, error) {
		return gp.References(ctx, p)
	})
}

// GetCitations returns the papers citing p as provider records.
func (a *Aggregator) GetCitations(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	return lookup(ctx, a, OpCitations, a.registry.GraphProviders(), func(ctx context.Context, gp papersources.GraphProvider) ([]*domain.Paper, error) {
		return gp.Citations(ctx, p)
	})
}

// Neighbors fetches one direction of p's citation neighborhood.
func (a *Aggregator) Neighbors(ctx context.Context, p *domain.Paper, dir domain.Direction) ([]*domain.Paper, error) {
	switch dir {
	case domain.DirectionBackward:
		return a.GetReferences(ctx, p)
	case domain.DirectionForward:
		return a.GetCitations(ctx, p)
	default:
		return nil, domain.NewValidationError("direction", "unknown direction "+string(dir))
	}
}

// lookup walks providers in order until one answers definitively.
func lookup[P papersources.Provider, T any](
	ctx context.Context,
	a *Aggregator,
	op string,
	providers []P,
	call func(context.Context, P) (T, error),
) (T, error) {
	var zero T
	if len(providers) == 0 {
		return zero, domain.NewConfigurationError("providers", "no enabled provider supports "+op)
	}

	var errs []error
	unsupported := 0
	for i, p := range providers {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := attempt(ctx, a, op, p, call)
		if err == nil {
			return result, nil
		}

		switch Classify(err) {
		case Cancelled:
			return zero, err
		case NotFound:
			return zero, err
		case Unsupported:
			unsupported++
		default:
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}

		if i < len(providers)-1 {
			a.stats.fallback(p.Name())
			a.metrics.RecordProviderFallback(p.Name(), op)
		}
	}

	if len(errs) == 0 && unsupported > 0 {
		return zero, fmt.Errorf("%s: no provider can look up this paper: %w", op, domain.ErrNoIdentifier)
	}

	a.stats.failure()
	a.metrics.RecordLookupFailure(op)
	err := fmt.Errorf("%s failed on all providers: %w", op, errors.Join(errs...))
	a.logger.Warn().Err(err).Str("operation", op).Msg("lookup failed")
	return zero, err
}

// attempt calls one provider, retrying transient failures.
func attempt[P papersources.Provider, T any](
	ctx context.Context,
	a *Aggregator,
	op string,
	p P,
	call func(context.Context, P) (T, error),
) (T, error) {
	name := p.Name()
	logger := observability.WithProviderContext(a.logger, name, op)
	policy := a.newBackOff()

	var result T
	tries := 0
	operation := func() error {
		tries++
		if tries > 1 {
			a.stats.retry(name)
			a.metrics.RecordProviderRetry(name, op)
		}

		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()

		start := time.Now()
		res, err := call(callCtx, p)
		elapsed := time.Since(start).Seconds()
		a.stats.attempt(name)

		if err == nil {
			result = res
			a.stats.success(name)
			a.metrics.RecordProviderRequest(name, op, "success", elapsed)
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		category := Classify(err)
		a.metrics.RecordProviderRequest(name, op, category.String(), elapsed)
		switch category {
		case Transient:
			var rle *domain.RateLimitError
			if errors.As(err, &rle) {
				policy.hint = min(rle.RetryAfter, a.cfg.MaxRetryAfter)
			}
			return err
		case NotFound:
			a.stats.notFound(name)
			return backoff.Permanent(err)
		default:
			return backoff.Permanent(err)
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(a.cfg.MaxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Debug().Err(err).Int("attempt", tries).Dur("backoff", wait).Msg("retrying provider call")
	}
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		var zero T
		if Classify(err) == Transient {
			logger.Warn().Err(err).Int("attempts", tries).Msg("provider call failed after retries")
		}
		return zero, err
	}
	return result, nil
}

// retryAfterBackOff stretches the next wait to a provider's Retry-After hint.
type retryAfterBackOff struct {
	*backoff.ExponentialBackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.ExponentialBackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.ExponentialBackOff.Reset()
	b.hint = 0
}

func (a *Aggregator) newBackOff() *retryAfterBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = a.cfg.InitialInterval
	exp.MaxInterval = a.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryAfterBackOff{ExponentialBackOff: exp}
}
