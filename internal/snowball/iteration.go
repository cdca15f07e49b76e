package snowball

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/aggregator"
	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/filter"
	"github.com/helixir/snowball-review/internal/observability"
	"github.com/helixir/snowball-review/internal/storage"
)

// saveTimeout bounds the save of merged papers after a cancellation.
const saveTimeout = 30 * time.Second

// iteration holds the working state of one RunIteration call.
type iteration struct {
	number  int
	project *domain.ReviewProject
	papers  []*domain.Paper
	index   *dedup.Index
	logger  zerolog.Logger

	discovered []*domain.Paper
	changed    map[string]*domain.Paper
	stats      domain.IterationStats
}

func (it *iteration) touch(p *domain.Paper) {
	it.changed[p.ID] = p
}

func (it *iteration) changedPapers() []*domain.Paper {
	out := make([]*domain.Paper, 0, len(it.changed))
	for _, p := range it.changed {
		out = append(out, p)
	}
	storage.SortPapers(out)
	return out
}

// RunIteration runs one snowball iteration:
//  1. select the frontier (included papers, plus seeds on the first iteration)
//  2. fetch references and citations of the frontier concurrently
//  3. merge the neighbors into the project, creating papers for new works
//  4. classify new papers against the project's filter criteria
//  5. score pending papers when a scorer is configured
//  6. commit papers and the advanced project atomically
//
// Failed lookups are counted in the returned stats and never abort the
// iteration. On success the caller's project is updated in place. On a
// commit failure a *domain.PersistenceError is returned and the project is
// left unchanged. When ctx is cancelled the papers merged so far are saved,
// the project is not advanced and the error wraps domain.ErrCancelled.
func (e *Engine) RunIteration(ctx context.Context, project *domain.ReviewProject, store storage.Storage) (domain.IterationStats, error) {
	start := time.Now()
	if project.CurrentIteration >= project.MaxIterations {
		return domain.IterationStats{}, fmt.Errorf("iteration %d of %d: %w",
			project.CurrentIteration+1, project.MaxIterations, domain.ErrIterationLimit)
	}

	papers, err := store.LoadAllPapers(ctx)
	if err != nil {
		e.metrics.RecordIterationFailed()
		return domain.IterationStats{}, domain.NewPersistenceError("load papers", err)
	}

	it := &iteration{
		number:  project.CurrentIteration + 1,
		project: project,
		papers:  papers,
		index:   dedup.NewIndex(e.resolver, papers),
		logger:  observability.WithProjectContext(e.logger, project.Name, project.CurrentIteration+1),
		changed: map[string]*domain.Paper{},
	}
	it.stats.Iteration = it.number

	frontier := e.frontier(it)
	it.logger.Info().
		Int("frontier", len(frontier)).
		Int("skipped", it.stats.Skipped).
		Int("papers", len(papers)).
		Msg("starting snowball iteration")

	results, fetchErr := e.fetcher.FetchNeighbors(ctx, frontier)
	e.merge(it, results)

	if fetchErr != nil || ctx.Err() != nil {
		return e.abandon(ctx, it, store)
	}

	e.countLeftovers(it)
	e.classify(it)
	e.score(ctx, it)
	if ctx.Err() != nil {
		return e.abandon(ctx, it, store)
	}

	it.stats.Discovered = it.stats.Backward + it.stats.Forward
	it.stats.ForReview = it.stats.Discovered - it.stats.AutoExcluded
	it.stats.Timestamp = time.Now().UTC()

	next := project.Clone()
	next.CurrentIteration = it.number
	next.IterationStats[it.number] = it.stats
	next.UpdatedAt = it.stats.Timestamp

	if err := store.Commit(ctx, next, it.changedPapers()); err != nil {
		e.metrics.RecordIterationFailed()
		it.logger.Error().Err(err).Msg("iteration commit failed")
		var perr *domain.PersistenceError
		if errors.As(err, &perr) {
			return it.stats, err
		}
		return it.stats, domain.NewPersistenceError("commit iteration", err)
	}
	*project = *next

	e.metrics.RecordIterationCompleted(time.Since(start).Seconds())
	e.metrics.RecordPapersDiscovered(string(domain.DirectionBackward), it.stats.Backward)
	e.metrics.RecordPapersDiscovered(string(domain.DirectionForward), it.stats.Forward)
	it.logger.Info().
		Int("discovered", it.stats.Discovered).
		Int("backward", it.stats.Backward).
		Int("forward", it.stats.Forward).
		Int("auto_excluded", it.stats.AutoExcluded).
		Int("for_review", it.stats.ForReview).
		Int("failed", it.stats.Failed).
		Int("skipped", it.stats.Skipped).
		Dur("duration", time.Since(start)).
		Msg("snowball iteration completed")

	return it.stats, nil
}

// frontier returns the papers to expand, in storage order. Papers no
// provider can look up are counted as skipped.
func (e *Engine) frontier(it *iteration) []*domain.Paper {
	seen := map[string]struct{}{}
	var out []*domain.Paper
	for _, p := range it.papers {
		inFrontier := p.Status == domain.PaperStatusIncluded ||
			(it.project.CurrentIteration == 0 && it.project.IsSeed(p.ID))
		if !inFrontier {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if !p.HasLookupID() {
			it.stats.Skipped++
			it.logger.Debug().Str("paper_id", p.ID).Str("title", p.Title).Msg("frontier paper has no identifier")
			continue
		}
		out = append(out, p)
	}
	return out
}

// merge folds fetch results into the project on the calling goroutine, so
// each canonical identity produces at most one paper.
func (e *Engine) merge(it *iteration, results []aggregator.NeighborResult) {
	noID := map[string]int{}
	for _, r := range results {
		if r.Err != nil {
			switch aggregator.Classify(r.Err) {
			case aggregator.Cancelled:
			case aggregator.Unsupported:
				noID[r.PaperID]++
				if noID[r.PaperID] == 2 {
					it.stats.Skipped++
				}
			case aggregator.NotFound:
				it.logger.Debug().Str("paper_id", r.PaperID).Str("direction", string(r.Direction)).Msg("paper unknown to providers")
			default:
				it.stats.Failed++
				it.logger.Warn().Err(r.Err).Str("paper_id", r.PaperID).Str("direction", string(r.Direction)).Msg("neighbor lookup failed")
			}
			continue
		}

		origin := it.index.Get(r.PaperID)
		if origin == nil {
			continue
		}
		for _, record := range r.Papers {
			e.mergeNeighbor(it, origin, r.Direction, record)
		}
	}
}

func (e *Engine) mergeNeighbor(it *iteration, origin *domain.Paper, dir domain.Direction, record *domain.Paper) {
	if record == nil || dedup.Canonicalize(record).IsZero() {
		return
	}
	// Provider records carry provider-side edges; project edges are rebuilt here.
	record.References = nil
	record.Citations = nil

	neighbor, match := it.index.Find(record)
	switch {
	case neighbor != nil && neighbor.ID == origin.ID:
		return
	case neighbor != nil:
		if dedup.Merge(neighbor, record) {
			it.index.Add(neighbor)
			it.touch(neighbor)
		}
		e.metrics.RecordPaperMerged()
	default:
		if match.Conflict != nil {
			e.metrics.RecordIdentityConflict()
			it.logger.Info().
				Err(match.Conflict).
				Str("existing_id", match.Conflict.ExistingID).
				Float64("similarity", match.Conflict.Similarity).
				Msg("ambiguous identity; keeping papers distinct")
		}
		neighbor = domain.NewPaper(record, dir.Source(), it.number)
		it.index.Add(neighbor)
		it.papers = append(it.papers, neighbor)
		it.addDiscovered(neighbor)
		it.touch(neighbor)
	}

	var linked bool
	switch dir {
	case domain.DirectionBackward:
		linked = origin.AddReference(neighbor.ID)
		linked = neighbor.AddCitation(origin.ID) || linked
	case domain.DirectionForward:
		linked = origin.AddCitation(neighbor.ID)
		linked = neighbor.AddReference(origin.ID) || linked
	}
	if linked {
		it.touch(origin)
		it.touch(neighbor)
	}
}

func (it *iteration) addDiscovered(p *domain.Paper) {
	it.discovered = append(it.discovered, p)
	switch p.Source {
	case domain.PaperSourceBackward:
		it.stats.Backward++
	case domain.PaperSourceForward:
		it.stats.Forward++
	case domain.PaperSourceSeed:
	}
}

// countLeftovers adds papers saved by a cancelled attempt at this iteration
// to the discovered set. They are never counted elsewhere because the
// project was not advanced.
func (e *Engine) countLeftovers(it *iteration) {
	for _, p := range it.papers {
		if p.SnowballIteration != it.number || p.Source == domain.PaperSourceSeed {
			continue
		}
		if slices.Contains(it.discovered, p) {
			continue
		}
		it.addDiscovered(p)
	}
}

// classify applies the filter criteria to the papers discovered in this
// iteration. Papers a human already dispositioned keep their status.
func (e *Engine) classify(it *iteration) {
	for _, p := range it.discovered {
		if p.Status == domain.PaperStatusPending {
			d := filter.Classify(p, it.project.FilterCriteria)
			if d.Excluded() && p.ApplyAutoExclusion(d.Reason) {
				setRaw(p, "exclusion_rule", string(d.Rule))
				it.touch(p)
				e.metrics.RecordAutoExcluded(string(d.Rule))
			}
		}
		if p.ExclusionType == domain.ExclusionTypeAuto {
			it.stats.AutoExcluded++
		}
	}
}

// score attaches relevance scores to every pending paper of the project.
func (e *Engine) score(ctx context.Context, it *iteration) {
	if e.scorer == nil {
		return
	}
	var pending []*domain.Paper
	for _, p := range it.papers {
		if p.Status == domain.PaperStatusPending {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return
	}

	start := time.Now()
	scored := e.scorer.ScorePapers(ctx, it.project.Query(), pending, func(current, total int) {
		it.logger.Debug().Int("current", current).Int("total", total).Msg("scoring progress")
	})
	e.metrics.RecordScoring(e.scorer.Method(), time.Since(start).Seconds())

	for _, s := range scored {
		score := s.Score
		s.Paper.RelevanceScore = &score
		setRaw(s.Paper, "relevance_score", score)
		it.touch(s.Paper)
	}
	it.logger.Info().
		Str("method", e.scorer.Method()).
		Int("papers", len(scored)).
		Dur("duration", time.Since(start)).
		Msg("scored pending papers")
}

// abandon saves the papers merged before the cancellation and reports it.
// The project is not advanced.
func (e *Engine) abandon(ctx context.Context, it *iteration, store storage.Storage) (domain.IterationStats, error) {
	e.metrics.RecordIterationCancelled()
	it.stats.Discovered = it.stats.Backward + it.stats.Forward

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	changed := it.changedPapers()
	if err := store.SavePapers(saveCtx, changed); err != nil {
		it.logger.Error().Err(err).Int("papers", len(changed)).Msg("failed to save merged papers after cancellation")
		return it.stats, errors.Join(
			fmt.Errorf("iteration %d: %w", it.number, domain.ErrCancelled),
			domain.NewPersistenceError("save merged papers", err),
		)
	}

	it.logger.Warn().
		Int("saved", len(changed)).
		Int("discovered", it.stats.Discovered).
		Msg("snowball iteration cancelled; merged papers saved")
	return it.stats, fmt.Errorf("iteration %d: %w: %w", it.number, domain.ErrCancelled, context.Cause(ctx))
}

func setRaw(p *domain.Paper, key string, value any) {
	if p.RawData == nil {
		p.RawData = map[string]any{}
	}
	p.RawData[key] = value
}

var _ Fetcher = (*aggregator.Aggregator)(nil)
