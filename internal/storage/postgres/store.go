// Package postgres stores review projects in PostgreSQL. One database holds
// any number of projects, each addressed by its storage key. Papers keep
// their full record as JSONB next to indexed columns; reference lists are
// mirrored into paper_edges for graph queries.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/database"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

const (
	selectProjectSQL = `
		SELECT name, description, research_question, scoring_method, max_iterations,
			current_iteration, filter_criteria, seed_paper_ids, created_at, updated_at
		FROM review_projects
		WHERE project = $1`

	selectStatsSQL = `
		SELECT iteration, discovered, backward, forward, auto_excluded, for_review,
			manual_included, manual_excluded, manual_maybe, reviewed, failed, skipped, recorded_at
		FROM iteration_stats
		WHERE project = $1
		ORDER BY iteration`

	upsertProjectSQL = `
		INSERT INTO review_projects (
			project, name, description, research_question, scoring_method, max_iterations,
			current_iteration, filter_criteria, seed_paper_ids, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (project) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			research_question = EXCLUDED.research_question,
			scoring_method = EXCLUDED.scoring_method,
			max_iterations = EXCLUDED.max_iterations,
			current_iteration = EXCLUDED.current_iteration,
			filter_criteria = EXCLUDED.filter_criteria,
			seed_paper_ids = EXCLUDED.seed_paper_ids,
			updated_at = EXCLUDED.updated_at`

	deleteStatsSQL = `DELETE FROM iteration_stats WHERE project = $1`

	insertStatsSQL = `
		INSERT INTO iteration_stats (
			project, iteration, discovered, backward, forward, auto_excluded, for_review,
			manual_included, manual_excluded, manual_maybe, reviewed, failed, skipped, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	upsertPaperSQL = `
		INSERT INTO papers (
			project, id, doi, arxiv_id, title, status, source, snowball_iteration,
			exclusion_type, relevance_score, data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (project, id) DO UPDATE SET
			doi = EXCLUDED.doi,
			arxiv_id = EXCLUDED.arxiv_id,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			exclusion_type = EXCLUDED.exclusion_type,
			relevance_score = EXCLUDED.relevance_score,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	deleteEdgesSQL = `DELETE FROM paper_edges WHERE project = $1 AND citing_id = $2`

	insertEdgesSQL = `
		INSERT INTO paper_edges (project, citing_id, cited_id)
		SELECT $1, $2, unnest($3::text[])
		ON CONFLICT DO NOTHING`

	selectPapersSQL = `SELECT data FROM papers WHERE project = $1 ORDER BY created_at, id`

	selectPaperSQL = `SELECT data FROM papers WHERE project = $1 AND id = $2`

	countPapersSQL = `
		SELECT status, source, COUNT(*)
		FROM papers
		WHERE project = $1
		GROUP BY status, source`
)

// Store is a PostgreSQL storage.Storage for one project.
type Store struct {
	db      database.TxBeginner
	project string
	logger  zerolog.Logger
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a store for the project key.
func New(db database.TxBeginner, project string, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, domain.NewConfigurationError("storage.database", "connection is required")
	}
	if project == "" {
		return nil, domain.NewConfigurationError("storage.database.project", "is required")
	}
	s := &Store{db: db, project: project, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LockKey returns the advisory lock key serialising commits of a project.
func LockKey(project string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("snowball:" + project))
	return int64(h.Sum64())
}

// LoadProject reads the project row and its iteration statistics.
func (s *Store) LoadProject(ctx context.Context) (*domain.ReviewProject, error) {
	var (
		p        domain.ReviewProject
		criteria []byte
	)
	err := s.db.QueryRow(ctx, selectProjectSQL, s.project).Scan(
		&p.Name, &p.Description, &p.ResearchQuestion, &p.ScoringMethod, &p.MaxIterations,
		&p.CurrentIteration, &criteria, &p.SeedPaperIDs, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("project", s.project)
	}
	if err != nil {
		return nil, domain.NewPersistenceError("read project", err)
	}
	if err := json.Unmarshal(criteria, &p.FilterCriteria); err != nil {
		return nil, domain.NewPersistenceError("read project", fmt.Errorf("decode filter criteria: %w", err))
	}

	p.IterationStats, err = s.loadStats(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("read iteration stats", err)
	}
	p.Normalize()
	return &p, nil
}

func (s *Store) loadStats(ctx context.Context) (map[int]domain.IterationStats, error) {
	rows, err := s.db.Query(ctx, selectStatsSQL, s.project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[int]domain.IterationStats{}
	for rows.Next() {
		var st domain.IterationStats
		if err := rows.Scan(
			&st.Iteration, &st.Discovered, &st.Backward, &st.Forward, &st.AutoExcluded, &st.ForReview,
			&st.ManualIncluded, &st.ManualExcluded, &st.ManualMaybe, &st.Reviewed, &st.Failed, &st.Skipped,
			&st.Timestamp,
		); err != nil {
			return nil, err
		}
		stats[st.Iteration] = st
	}
	return stats, rows.Err()
}

// SaveProject upserts the project row and replaces its iteration statistics.
func (s *Store) SaveProject(ctx context.Context, project *domain.ReviewProject) error {
	if err := project.Validate(); err != nil {
		return err
	}
	err := database.InTx(ctx, s.db, pgx.TxOptions{}, s.logger, func(tx pgx.Tx) error {
		return s.writeProject(ctx, tx, project)
	})
	if err != nil {
		return domain.NewPersistenceError("write project", err)
	}
	return nil
}

func (s *Store) writeProject(ctx context.Context, q database.Querier, project *domain.ReviewProject) error {
	criteria, err := json.Marshal(project.FilterCriteria)
	if err != nil {
		return fmt.Errorf("encode filter criteria: %w", err)
	}
	seeds := project.SeedPaperIDs
	if seeds == nil {
		seeds = []string{}
	}
	if _, err := q.Exec(ctx, upsertProjectSQL,
		s.project, project.Name, project.Description, project.ResearchQuestion, project.ScoringMethod,
		project.MaxIterations, project.CurrentIteration, criteria, seeds, project.CreatedAt, project.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}

	if _, err := q.Exec(ctx, deleteStatsSQL, s.project); err != nil {
		return fmt.Errorf("clear iteration stats: %w", err)
	}
	for _, n := range project.SortedIterations() {
		st := project.IterationStats[n]
		if _, err := q.Exec(ctx, insertStatsSQL,
			s.project, n, st.Discovered, st.Backward, st.Forward, st.AutoExcluded, st.ForReview,
			st.ManualIncluded, st.ManualExcluded, st.ManualMaybe, st.Reviewed, st.Failed, st.Skipped,
			st.Timestamp,
		); err != nil {
			return fmt.Errorf("insert iteration %d stats: %w", n, err)
		}
	}
	return nil
}

// LoadAllPapers returns every paper of the project.
func (s *Store) LoadAllPapers(ctx context.Context) ([]*domain.Paper, error) {
	rows, err := s.db.Query(ctx, selectPapersSQL, s.project)
	if err != nil {
		return nil, domain.NewPersistenceError("read papers", err)
	}
	defer rows.Close()

	papers := []*domain.Paper{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, domain.NewPersistenceError("read papers", err)
		}
		p, err := decodePaper(data)
		if err != nil {
			return nil, domain.NewPersistenceError("read papers", err)
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("read papers", err)
	}
	storage.SortPapers(papers)
	return papers, nil
}

// LoadPaper returns one paper by id.
func (s *Store) LoadPaper(ctx context.Context, id string) (*domain.Paper, error) {
	var data []byte
	err := s.db.QueryRow(ctx, selectPaperSQL, s.project, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("paper", id)
	}
	if err != nil {
		return nil, domain.NewPersistenceError("read paper", err)
	}
	p, err := decodePaper(data)
	if err != nil {
		return nil, domain.NewPersistenceError("read paper", err)
	}
	return p, nil
}

// SavePaper upserts one paper.
func (s *Store) SavePaper(ctx context.Context, paper *domain.Paper) error {
	return s.SavePapers(ctx, []*domain.Paper{paper})
}

// SavePapers upserts papers in one transaction.
func (s *Store) SavePapers(ctx context.Context, papers []*domain.Paper) error {
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	if len(papers) == 0 {
		return nil
	}
	err := database.InTx(ctx, s.db, pgx.TxOptions{}, s.logger, func(tx pgx.Tx) error {
		return s.writePapers(ctx, tx, papers)
	})
	if err != nil {
		return domain.NewPersistenceError("write papers", err)
	}
	return nil
}

// Commit upserts papers and writes the project in one transaction, holding
// the project's advisory lock.
func (s *Store) Commit(ctx context.Context, project *domain.ReviewProject, papers []*domain.Paper) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	err := database.InTx(ctx, s.db, pgx.TxOptions{}, s.logger, func(tx pgx.Tx) error {
		if err := database.AcquireAdvisoryLockTx(ctx, tx, LockKey(s.project)); err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		if err := s.writePapers(ctx, tx, papers); err != nil {
			return err
		}
		return s.writeProject(ctx, tx, project)
	})
	if err != nil {
		return domain.NewPersistenceError("commit", err)
	}
	s.logger.Debug().Str("project", s.project).Int("papers", len(papers)).Msg("committed project snapshot")
	return nil
}

func (s *Store) writePapers(ctx context.Context, q database.Querier, papers []*domain.Paper) error {
	for _, p := range papers {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode paper %s: %w", p.ID, err)
		}
		if _, err := q.Exec(ctx, upsertPaperSQL,
			s.project, p.ID, p.DOI, p.ArxivID, p.Title, string(p.Status), string(p.Source), p.SnowballIteration,
			string(p.ExclusionType), p.RelevanceScore, data, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert paper %s: %w", p.ID, err)
		}
		if _, err := q.Exec(ctx, deleteEdgesSQL, s.project, p.ID); err != nil {
			return fmt.Errorf("clear edges of %s: %w", p.ID, err)
		}
		if len(p.References) == 0 {
			continue
		}
		if _, err := q.Exec(ctx, insertEdgesSQL, s.project, p.ID, p.References); err != nil {
			return fmt.Errorf("insert edges of %s: %w", p.ID, err)
		}
	}
	return nil
}

// Statistics counts papers by status and source in the database.
func (s *Store) Statistics(ctx context.Context) (storage.Statistics, error) {
	rows, err := s.db.Query(ctx, countPapersSQL, s.project)
	if err != nil {
		return storage.Statistics{}, domain.NewPersistenceError("count papers", err)
	}
	defer rows.Close()

	stats := storage.ComputeStatistics(nil)
	for rows.Next() {
		var (
			status, source string
			count          int
		)
		if err := rows.Scan(&status, &source, &count); err != nil {
			return storage.Statistics{}, domain.NewPersistenceError("count papers", err)
		}
		stats.Total += count
		stats.ByStatus[domain.PaperStatus(status)] += count
		stats.BySource[domain.PaperSource(source)] += count
	}
	if err := rows.Err(); err != nil {
		return storage.Statistics{}, domain.NewPersistenceError("count papers", err)
	}
	return stats, nil
}

func decodePaper(data []byte) (*domain.Paper, error) {
	var p domain.Paper
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode paper: %w", err)
	}
	p.Normalize()
	return &p, nil
}
