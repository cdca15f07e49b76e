package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

func TestFetchNeighbors_OrderAndIsolation(t *testing.T) {
	t.Parallel()

	graph := &stubProvider{
		name:       "graph",
		sourceType: domain.SourceTypeOpenAlex,
		references: func(_ context.Context, p *domain.Paper) ([]*domain.Paper, error) {
			if p.ID == "broken" {
				return nil, domain.NewExternalAPIError("graph", 400, "bad id", domain.ErrInvalidInput)
			}
			return []*domain.Paper{{Title: "ref of " + p.ID}}, nil
		},
		citations: func(_ context.Context, p *domain.Paper) ([]*domain.Paper, error) {
			return []*domain.Paper{{Title: "cite of " + p.ID}}, nil
		},
	}
	agg := newAggregator(t, graph)

	frontier := []*domain.Paper{{ID: "a", DOI: "10.1/a"}, {ID: "broken", DOI: "10.1/b"}}
	results, err := agg.FetchNeighbors(context.Background(), frontier)

	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "a", results[0].PaperID)
	assert.Equal(t, domain.DirectionBackward, results[0].Direction)
	assert.Equal(t, "ref of a", results[0].Papers[0].Title)

	assert.Equal(t, domain.DirectionForward, results[1].Direction)
	assert.Equal(t, "cite of a", results[1].Papers[0].Title)

	assert.Equal(t, "broken", results[2].PaperID)
	assert.Error(t, results[2].Err)
	assert.Empty(t, results[2].Papers)

	require.NoError(t, results[3].Err)
	assert.Equal(t, "cite of broken", results[3].Papers[0].Title)
}

func TestFetchNeighbors_BoundedConcurrency(t *testing.T) {
	t.Parallel()

	var g gauge
	slow := func(context.Context, *domain.Paper) ([]*domain.Paper, error) {
		g.enter()
		defer g.leave()
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}
	graph := &stubProvider{name: "graph", sourceType: domain.SourceTypeOpenAlex, references: slow, citations: slow}

	cfg := testConfig()
	cfg.MaxConcurrency = 3
	agg := New(papersources.NewRegistry(graph), cfg)

	frontier := make([]*domain.Paper, 10)
	for i := range frontier {
		frontier[i] = &domain.Paper{ID: string(rune('a' + i)), DOI: "10.1/x"}
	}

	results, err := agg.FetchNeighbors(context.Background(), frontier)

	require.NoError(t, err)
	assert.Len(t, results, 20)
	assert.LessOrEqual(t, g.Peak(), 3)
	assert.Equal(t, int32(20), graph.calls.Load())
}

func TestFetchNeighbors_Cancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	graph := &stubProvider{
		name:       "graph",
		sourceType: domain.SourceTypeOpenAlex,
		references: func(_ context.Context, p *domain.Paper) ([]*domain.Paper, error) {
			if p.ID == "first" {
				return []*domain.Paper{{Title: "kept"}}, nil
			}
			return nil, nil
		},
		citations: func(_ context.Context, p *domain.Paper) ([]*domain.Paper, error) {
			cancel()
			return nil, nil
		},
	}

	cfg := testConfig()
	cfg.MaxConcurrency = 1
	agg := New(papersources.NewRegistry(graph), cfg)

	frontier := []*domain.Paper{{ID: "first", DOI: "10.1/a"}, {ID: "second", DOI: "10.1/b"}}
	results, err := agg.FetchNeighbors(ctx, frontier)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 4)

	require.NoError(t, results[0].Err)
	assert.Equal(t, "kept", results[0].Papers[0].Title)
	assert.ErrorIs(t, results[2].Err, context.Canceled)
	assert.ErrorIs(t, results[3].Err, context.Canceled)
}

func TestFetchNeighbors_EmptyFrontier(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t, &stubProvider{name: "graph", sourceType: domain.SourceTypeOpenAlex})
	results, err := agg.FetchNeighbors(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, results)
}
