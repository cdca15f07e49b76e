package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

type stubProvider struct {
	name       string
	sourceType domain.SourceType
	disabled   bool

	resolve    func(ctx context.Context, q papersources.Query) (*domain.Paper, error)
	references func(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error)
	citations  func(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error)

	calls atomic.Int32
}

func (s *stubProvider) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	s.calls.Add(1)
	if s.resolve == nil {
		return nil, domain.NewNotFoundError("paper", q.Value)
	}
	return s.resolve(ctx, q)
}

func (s *stubProvider) References(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	s.calls.Add(1)
	if s.references == nil {
		return nil, nil
	}
	return s.references(ctx, p)
}

func (s *stubProvider) Citations(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	s.calls.Add(1)
	if s.citations == nil {
		return nil, nil
	}
	return s.citations(ctx, p)
}

func (s *stubProvider) SourceType() domain.SourceType { return s.sourceType }
func (s *stubProvider) Name() string                  { return s.name }
func (s *stubProvider) IsEnabled() bool               { return !s.disabled }

// resolveOnly exposes no citation graph.
type resolveOnly struct {
	p *stubProvider
}

func (r resolveOnly) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	return r.p.Resolve(ctx, q)
}

func (r resolveOnly) SourceType() domain.SourceType { return r.p.sourceType }
func (r resolveOnly) Name() string                  { return r.p.name }
func (r resolveOnly) IsEnabled() bool               { return !r.p.disabled }

func unavailable(source string) error {
	return domain.NewExternalAPIError(source, 503, "unavailable", domain.ErrServiceUnavailable)
}

func testConfig() Config {
	return Config{
		MaxConcurrency:  2,
		CallTimeout:     time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetryAfter:   time.Second,
	}
}

// gauge tracks the peak number of concurrent holders.
type gauge struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (g *gauge) enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	g.peak = max(g.peak, g.current)
}

func (g *gauge) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current--
}

func (g *gauge) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}
