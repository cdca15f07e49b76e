package snowball

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
	"github.com/helixir/snowball-review/internal/storage"
)

// SeedResult describes the outcome of adding a seed.
type SeedResult struct {
	Paper *domain.Paper
	// Existing is true when the seed matched a paper already in the project.
	Existing bool
	// Resolved is false when no provider knew the paper and the record was
	// stored as parsed.
	Resolved bool
}

// AddSeed resolves a DOI, arXiv id or title through the providers and adds
// the paper to the project as an included seed. A seed that duplicates an
// existing paper marks that paper as a seed instead. The project is
// updated in place once the change is committed.
func (e *Engine) AddSeed(ctx context.Context, project *domain.ReviewProject, store storage.Storage, query string) (SeedResult, error) {
	q := papersources.ParseQuery(query)
	if q.Value == "" {
		return SeedResult{}, domain.NewValidationError("query", "a DOI, arXiv id or title is required")
	}

	record, err := e.fetcher.Resolve(ctx, q)
	if err != nil {
		return SeedResult{}, fmt.Errorf("resolve seed %q: %w", query, err)
	}
	result, err := e.admitSeed(ctx, project, store, record)
	if err != nil {
		return SeedResult{}, err
	}
	result.Resolved = true
	return result, nil
}

// AddSeedFromPDF parses a PDF file or URL and adds the paper as a seed. The
// extracted DOI is resolved first, then the extracted title. When neither
// resolves the parsed record itself is stored.
func (e *Engine) AddSeedFromPDF(ctx context.Context, project *domain.ReviewProject, store storage.Storage, source string) (SeedResult, error) {
	if e.pdf == nil {
		return SeedResult{}, domain.NewConfigurationError("pdf", "no PDF parser configured")
	}

	parsed, err := e.pdf.Parse(ctx, source)
	if err != nil {
		return SeedResult{}, fmt.Errorf("parse pdf %s: %w", source, err)
	}

	var queries []papersources.Query
	if doi := dedup.NormalizeDOI(parsed.DOI); doi != "" {
		queries = append(queries, papersources.Query{Kind: papersources.QueryDOI, Value: doi})
	}
	if title := strings.TrimSpace(parsed.Title); title != "" {
		queries = append(queries, papersources.Query{Kind: papersources.QueryTitle, Value: title})
	}

	for _, q := range queries {
		record, err := e.fetcher.Resolve(ctx, q)
		if err == nil {
			dedup.Merge(record, parsed)
			result, err := e.admitSeed(ctx, project, store, record)
			if err != nil {
				return SeedResult{}, err
			}
			result.Resolved = true
			return result, nil
		}
		if ctx.Err() != nil {
			return SeedResult{}, fmt.Errorf("resolve pdf seed: %w: %w", domain.ErrCancelled, ctx.Err())
		}
		e.logger.Info().Err(err).Str("kind", string(q.Kind)).Str("value", q.Value).Msg("pdf seed lookup did not resolve")
	}

	if dedup.Canonicalize(parsed).IsZero() {
		return SeedResult{}, domain.NewValidationError("pdf", "no DOI or title could be extracted from "+source)
	}
	return e.admitSeed(ctx, project, store, parsed)
}

func (e *Engine) admitSeed(ctx context.Context, project *domain.ReviewProject, store storage.Storage, record *domain.Paper) (SeedResult, error) {
	papers, err := store.LoadAllPapers(ctx)
	if err != nil {
		return SeedResult{}, domain.NewPersistenceError("load papers", err)
	}

	index := dedup.NewIndex(e.resolver, papers)
	paper, _ := index.Find(record)
	existing := paper != nil
	if existing {
		dedup.Merge(paper, record)
		if !paper.Status.IsReviewed() {
			paper.Status = domain.PaperStatusIncluded
			paper.ExclusionType = domain.ExclusionTypeNone
		}
	} else {
		paper = domain.NewPaper(record, domain.PaperSourceSeed, 0)
		paper.Status = domain.PaperStatusIncluded
	}

	next := project.Clone()
	next.AddSeed(paper.ID)
	if err := store.Commit(ctx, next, []*domain.Paper{paper}); err != nil {
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			err = domain.NewPersistenceError("add seed", err)
		}
		return SeedResult{}, err
	}
	*project = *next

	e.logger.Info().
		Str("paper_id", paper.ID).
		Str("doi", paper.DOI).
		Str("title", paper.Title).
		Bool("existing", existing).
		Msg("seed paper added")
	return SeedResult{Paper: paper, Existing: existing}, nil
}
