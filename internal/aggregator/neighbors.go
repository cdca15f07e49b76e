package aggregator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/snowball-review/internal/domain"
)

// NeighborResult is the outcome of one direction of one frontier lookup.
// Err is nil on success; a lookup abandoned through cancellation carries
// the context error.
type NeighborResult struct {
	PaperID   string
	Direction domain.Direction
	Papers    []*domain.Paper
	Err       error
}

// FetchNeighbors fetches references and citations for every frontier
// paper, running at most Config.MaxConcurrency lookups at a time. Results
// are returned in frontier order, backward before forward. A failed lookup
// is reported in its result and never stops the others. When ctx ends,
// lookups not yet started are abandoned and the context error is returned
// alongside the results gathered so far.
func (a *Aggregator) FetchNeighbors(ctx context.Context, frontier []*domain.Paper) ([]NeighborResult, error) {
	directions := []domain.Direction{domain.DirectionBackward, domain.DirectionForward}
	results := make([]NeighborResult, len(frontier)*len(directions))

	var g errgroup.Group
	g.SetLimit(a.cfg.MaxConcurrency)

	for i, paper := range frontier {
		for j, dir := range directions {
			idx := i*len(directions) + j
			results[idx] = NeighborResult{PaperID: paper.ID, Direction: dir}

			if err := ctx.Err(); err != nil {
				results[idx].Err = err
				continue
			}
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					results[idx].Err = err
					return nil
				}
				papers, err := a.Neighbors(ctx, paper, dir)
				results[idx].Papers = papers
				results[idx].Err = err
				return nil
			})
		}
	}
	_ = g.Wait()

	return results, ctx.Err()
}
