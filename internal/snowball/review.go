package snowball

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

// UpdateReview records a human decision on a paper. Excluding marks the
// exclusion as manual; a non-empty note is appended to the paper's notes.
// The manual counters of the paper's iteration are refreshed in the same
// commit.
func (e *Engine) UpdateReview(ctx context.Context, store storage.Storage, id string, status domain.PaperStatus, note string) (*domain.Paper, error) {
	paper, err := store.LoadPaper(ctx, id)
	if err != nil {
		return nil, err
	}

	update := domain.ReviewUpdate{Status: status}
	if note = strings.TrimSpace(note); note != "" {
		notes := note
		if paper.Notes != "" {
			notes = paper.Notes + "\n" + note
		}
		update.Notes = &notes
	}
	if err := paper.SetReview(update); err != nil {
		return nil, err
	}

	project, err := store.LoadProject(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := project.IterationStats[paper.SnowballIteration]; ok {
		papers, err := store.LoadAllPapers(ctx)
		if err != nil {
			return nil, domain.NewPersistenceError("load papers", err)
		}
		papers = storage.MergeSnapshot(papers, []*domain.Paper{paper})
		project.IterationStats[paper.SnowballIteration] = refreshReviewCounts(
			project.IterationStats[paper.SnowballIteration], papers)
	}

	if err := store.Commit(ctx, project, []*domain.Paper{paper}); err != nil {
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			err = domain.NewPersistenceError("update review", err)
		}
		return nil, err
	}

	e.logger.Info().
		Str("paper_id", paper.ID).
		Str("status", string(paper.Status)).
		Str("exclusion_type", string(paper.ExclusionType)).
		Msg("review updated")
	return paper, nil
}

// refreshReviewCounts recomputes the manual counters of one iteration from
// the papers discovered in it.
func refreshReviewCounts(stats domain.IterationStats, papers []*domain.Paper) domain.IterationStats {
	stats.ManualIncluded, stats.ManualExcluded, stats.ManualMaybe, stats.Reviewed = 0, 0, 0, 0
	for _, p := range papers {
		if p.SnowballIteration != stats.Iteration || p.ReviewedAt == nil {
			continue
		}
		switch p.Status {
		case domain.PaperStatusIncluded:
			stats.ManualIncluded++
		case domain.PaperStatusExcluded:
			stats.ManualExcluded++
		case domain.PaperStatusMaybe:
			stats.ManualMaybe++
		case domain.PaperStatusPending:
			continue
		}
		stats.Reviewed++
	}
	return stats
}

// PapersForReview returns the pending papers, most relevant first: by
// relevance score, then citation count, both descending. Unscored papers
// and unknown counts sort last.
func (e *Engine) PapersForReview(ctx context.Context, store storage.Storage) ([]*domain.Paper, error) {
	papers, err := store.LoadAllPapers(ctx)
	if err != nil {
		return nil, err
	}
	pending := slices.DeleteFunc(papers, func(p *domain.Paper) bool {
		return p.Status != domain.PaperStatusPending
	})
	SortForReview(pending)
	return pending, nil
}

// SortForReview orders papers by relevance score then citation count, both
// descending, keeping the storage order for ties.
func SortForReview(papers []*domain.Paper) {
	slices.SortStableFunc(papers, func(a, b *domain.Paper) int {
		if c := cmpDesc(a.RelevanceScore, b.RelevanceScore); c != 0 {
			return c
		}
		return cmpDesc(a.CitationCount, b.CitationCount)
	})
}

func cmpDesc[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*b, *a)
	}
}

// Summary is a project overview.
type Summary struct {
	Project        *domain.ReviewProject   `json:"project"`
	Statistics     storage.Statistics      `json:"statistics"`
	Iterations     []domain.IterationStats `json:"iterations"`
	ShouldContinue bool                    `json:"should_continue"`
}

// Summary returns the project's paper statistics and its iteration history
// in iteration order.
func (e *Engine) Summary(ctx context.Context, project *domain.ReviewProject, store storage.Storage) (Summary, error) {
	stats, err := store.Statistics(ctx)
	if err != nil {
		return Summary{}, err
	}
	iterations := make([]domain.IterationStats, 0, len(project.IterationStats))
	for _, n := range project.SortedIterations() {
		iterations = append(iterations, project.IterationStats[n])
	}
	return Summary{
		Project:        project,
		Statistics:     stats,
		Iterations:     iterations,
		ShouldContinue: ShouldContinue(project),
	}, nil
}
