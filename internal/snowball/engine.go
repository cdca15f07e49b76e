// Package snowball drives a systematic review through snowball iterations.
//
// The Engine is stateless between calls: every operation receives the
// project and its storage explicitly. The caller owns the iteration loop:
//
//	for engine.ShouldContinue(project) {
//		stats, err := engine.RunIteration(ctx, project, store)
//		...
//	}
//
// Only the provider fetch phase of an iteration runs concurrently. Merging,
// classification, scoring and the commit happen on the calling goroutine.
package snowball

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/aggregator"
	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/observability"
	"github.com/helixir/snowball-review/internal/papersources"
	"github.com/helixir/snowball-review/internal/scoring"
)

// Fetcher is the provider access the engine needs. *aggregator.Aggregator
// implements it.
type Fetcher interface {
	Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error)
	FetchNeighbors(ctx context.Context, frontier []*domain.Paper) ([]aggregator.NeighborResult, error)
}

// PDFParser extracts a best-effort paper record from a PDF file or URL.
type PDFParser interface {
	Parse(ctx context.Context, source string) (*domain.Paper, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer enables relevance scoring of pending papers after each iteration.
func WithScorer(s scoring.Scorer) Option {
	return func(e *Engine) {
		e.scorer = s
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithPDFParser enables AddSeedFromPDF.
func WithPDFParser(p PDFParser) Option {
	return func(e *Engine) {
		e.pdf = p
	}
}

// WithResolver replaces the identity resolver.
func WithResolver(r *dedup.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// Engine runs snowball iterations over a project.
type Engine struct {
	fetcher  Fetcher
	resolver *dedup.Resolver
	scorer   scoring.Scorer
	pdf      PDFParser
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// New creates an engine that reaches providers through fetcher.
func New(fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher:  fetcher,
		resolver: dedup.NewResolver(dedup.DefaultConfig()),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShouldContinue reports whether another iteration may run: the iteration
// cap has not been reached and the previous iteration, if any, discovered
// at least one paper.
func (e *Engine) ShouldContinue(project *domain.ReviewProject) bool {
	return ShouldContinue(project)
}

// ShouldContinue is the stateless form of Engine.ShouldContinue.
func ShouldContinue(project *domain.ReviewProject) bool {
	if project.CurrentIteration >= project.MaxIterations {
		return false
	}
	prev, ok := project.PreviousStats()
	return !ok || prev.Discovered > 0
}
