package snowball

import (
	"context"
	"errors"
	"sync"

	"github.com/helixir/snowball-review/internal/aggregator"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
	"github.com/helixir/snowball-review/internal/scoring"
	"github.com/helixir/snowball-review/internal/storage/memstore"
)

// fakeFetcher serves canned provider data keyed by DOI.
type fakeFetcher struct {
	mu       sync.Mutex
	resolve  map[string]*domain.Paper
	refs     map[string][]*domain.Paper
	cites    map[string][]*domain.Paper
	errs     map[string]error
	frontier [][]string

	// cancelAfter stops the fetch after serving this many frontier papers.
	cancelAfter int
	cancel      context.CancelFunc
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		resolve: map[string]*domain.Paper{},
		refs:    map[string][]*domain.Paper{},
		cites:   map[string][]*domain.Paper{},
		errs:    map[string]error{},
	}
}

func (f *fakeFetcher) Resolve(_ context.Context, q papersources.Query) (*domain.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.resolve[q.Value]; ok {
		return p.Clone(), nil
	}
	return nil, domain.NewNotFoundError("paper", q.Value)
}

func (f *fakeFetcher) FetchNeighbors(ctx context.Context, frontier []*domain.Paper) ([]aggregator.NeighborResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, len(frontier))
	var results []aggregator.NeighborResult
	for i, p := range frontier {
		ids[i] = p.ID
		if f.cancel != nil && i == f.cancelAfter {
			f.cancel()
		}
		for _, dir := range []domain.Direction{domain.DirectionBackward, domain.DirectionForward} {
			r := aggregator.NeighborResult{PaperID: p.ID, Direction: dir}
			switch {
			case ctx.Err() != nil:
				r.Err = ctx.Err()
			case f.errs[p.DOI+"/"+string(dir)] != nil:
				r.Err = f.errs[p.DOI+"/"+string(dir)]
			case dir == domain.DirectionBackward:
				r.Papers = cloneAll(f.refs[p.DOI])
			default:
				r.Papers = cloneAll(f.cites[p.DOI])
			}
			results = append(results, r)
		}
	}
	f.frontier = append(f.frontier, ids)
	return results, ctx.Err()
}

func cloneAll(papers []*domain.Paper) []*domain.Paper {
	out := make([]*domain.Paper, len(papers))
	for i, p := range papers {
		out[i] = p.Clone()
	}
	return out
}

// failingCommitStore fails every commit.
type failingCommitStore struct {
	*memstore.Store
}

var errDiskFull = errors.New("disk full")

func (s failingCommitStore) Commit(context.Context, *domain.ReviewProject, []*domain.Paper) error {
	return errDiskFull
}

// constScorer scores every paper the same.
type constScorer struct {
	score float64
	calls int
}

func (s *constScorer) Method() string { return "const" }

func (s *constScorer) ScorePapers(_ context.Context, _ string, papers []*domain.Paper, progress scoring.ProgressFunc) []scoring.Scored {
	s.calls++
	out := make([]scoring.Scored, len(papers))
	for i, p := range papers {
		out[i] = scoring.Scored{Paper: p, Score: s.score}
	}
	if progress != nil {
		progress(len(papers), len(papers))
	}
	return out
}

// fakeParser returns a fixed record.
type fakeParser struct {
	paper *domain.Paper
	err   error
}

func (p fakeParser) Parse(context.Context, string) (*domain.Paper, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.paper.Clone(), nil
}
