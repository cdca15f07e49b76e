// Package scoring attaches relevance scores in [0, 1] to papers against a
// research question. Scores are advisory metadata: they order the review
// queue and never change a paper's status.
package scoring

import (
	"context"
	"math"

	"github.com/helixir/snowball-review/internal/domain"
)

// Scored pairs a paper with its relevance score.
type Scored struct {
	Paper *domain.Paper
	Score float64
}

// ProgressFunc receives scoring progress. It is called at least once with
// current == total when scoring completes.
type ProgressFunc func(current, total int)

// Scorer ranks papers by relevance to a query.
//
// Implementations return one result per input paper in input order, return
// an empty result for an empty input, and never fail: on any internal error
// every affected paper scores 0.0.
type Scorer interface {
	ScorePapers(ctx context.Context, query string, papers []*domain.Paper, progress ProgressFunc) []Scored

	// Method returns the scoring method name ("tfidf", "llm").
	Method() string
}

func clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func zeroScores(papers []*domain.Paper) []Scored {
	out := make([]Scored, len(papers))
	for i, p := range papers {
		out[i] = Scored{Paper: p}
	}
	return out
}

func report(progress ProgressFunc, current, total int) {
	if progress != nil {
		progress(current, total)
	}
}

func paperText(p *domain.Paper) string {
	if p.Abstract == "" {
		return p.Title
	}
	return p.Title + ". " + p.Abstract
}
