package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
)

const testProject = "thesis"

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := New(mock, testProject)
	require.NoError(t, err)
	return s, mock
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, testProject)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = New(mock, "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, LockKey("a"), LockKey("a"))
	assert.NotEqual(t, LockKey("a"), LockKey("b"))
}

func TestStore_LoadProject(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns not found when the row is absent", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT name, description").WithArgs(testProject).WillReturnError(pgx.ErrNoRows)

		_, err := s.LoadProject(ctx)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loads project with iteration stats", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT name, description").WithArgs(testProject).
			WillReturnRows(pgxmock.NewRows([]string{
				"name", "description", "research_question", "scoring_method", "max_iterations",
				"current_iteration", "filter_criteria", "seed_paper_ids", "created_at", "updated_at",
			}).AddRow("review", "desc", "snowballing?", "tfidf", 3, 1,
				[]byte(`{"min_year": 2020, "keywords": ["snowball"]}`), []string{"seed-1"}, now, now))
		mock.ExpectQuery("FROM iteration_stats").WithArgs(testProject).
			WillReturnRows(pgxmock.NewRows([]string{
				"iteration", "discovered", "backward", "forward", "auto_excluded", "for_review",
				"manual_included", "manual_excluded", "manual_maybe", "reviewed", "failed", "skipped", "recorded_at",
			}).AddRow(1, 2, 1, 1, 2, 0, 0, 0, 0, 0, 0, 0, now))

		project, err := s.LoadProject(ctx)
		require.NoError(t, err)
		assert.Equal(t, "review", project.Name)
		assert.Equal(t, "snowballing?", project.ResearchQuestion)
		assert.Equal(t, 1, project.CurrentIteration)
		require.NotNil(t, project.FilterCriteria.MinYear)
		assert.Equal(t, 2020, *project.FilterCriteria.MinYear)
		assert.Equal(t, []string{"snowball"}, project.FilterCriteria.Keywords)
		assert.Empty(t, project.FilterCriteria.ExcludedKeywords)
		assert.Equal(t, []string{"seed-1"}, project.SeedPaperIDs)
		assert.Equal(t, 2, project.IterationStats[1].AutoExcluded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps query failures", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT name, description").WithArgs(testProject).WillReturnError(errors.New("connection refused"))

		_, err := s.LoadProject(ctx)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestStore_LoadPapers(t *testing.T) {
	ctx := context.Background()

	late := domain.NewPaper(&domain.Paper{Title: "Later"}, domain.PaperSourceForward, 1)
	early := domain.NewPaper(&domain.Paper{Title: "Earlier"}, domain.PaperSourceSeed, 0)
	early.CreatedAt = late.CreatedAt.Add(-time.Hour)
	lateJSON, err := json.Marshal(late)
	require.NoError(t, err)
	earlyJSON, err := json.Marshal(early)
	require.NoError(t, err)

	t.Run("loads all papers ordered by creation", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT data FROM papers").WithArgs(testProject).
			WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(lateJSON).AddRow(earlyJSON))

		papers, err := s.LoadAllPapers(ctx)
		require.NoError(t, err)
		require.Len(t, papers, 2)
		assert.Equal(t, "Earlier", papers[0].Title)
		assert.Equal(t, domain.PaperSourceForward, papers[1].Source)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loads one paper", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT data FROM papers").WithArgs(testProject, late.ID).
			WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(lateJSON))

		p, err := s.LoadPaper(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, late.ID, p.ID)
	})

	t.Run("missing paper", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT data FROM papers").WithArgs(testProject, "missing").WillReturnError(pgx.ErrNoRows)

		_, err := s.LoadPaper(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("corrupt record", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("SELECT data FROM papers").WithArgs(testProject).
			WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte("{broken")))

		_, err := s.LoadAllPapers(ctx)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestStore_Commit(t *testing.T) {
	ctx := context.Background()

	project := domain.NewReviewProject("review", "", 2)
	project.CurrentIteration = 1
	project.IterationStats[1] = domain.IterationStats{Iteration: 1, Discovered: 1, Backward: 1}

	seed := domain.NewPaper(&domain.Paper{Title: "Seed"}, domain.PaperSourceSeed, 0)
	ref := domain.NewPaper(&domain.Paper{Title: "Ref"}, domain.PaperSourceBackward, 1)
	seed.AddReference(ref.ID)
	ref.AddCitation(seed.ID)

	t.Run("writes papers, edges and project in one transaction", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(LockKey(testProject)).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec("INSERT INTO papers").WithArgs(anyArgs(13)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM paper_edges").WithArgs(testProject, seed.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO paper_edges").WithArgs(testProject, seed.ID, []string{ref.ID}).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO papers").WithArgs(anyArgs(13)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM paper_edges").WithArgs(testProject, ref.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO review_projects").WithArgs(anyArgs(11)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM iteration_stats").WithArgs(testProject).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO iteration_stats").WithArgs(anyArgs(14)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, s.Commit(ctx, project, []*domain.Paper{seed, ref}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(LockKey(testProject)).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		mock.ExpectExec("INSERT INTO papers").WithArgs(anyArgs(13)...).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.Commit(ctx, project, []*domain.Paper{seed})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validates before touching the database", func(t *testing.T) {
		s, mock := newMockStore(t)

		err := s.Commit(ctx, project, []*domain.Paper{{Title: "no id"}})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_SavePapers(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	require.NoError(t, s.SavePapers(ctx, nil))

	p := domain.NewPaper(&domain.Paper{Title: "Only"}, domain.PaperSourceSeed, 0)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO papers").WithArgs(anyArgs(13)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM paper_edges").WithArgs(testProject, p.ID).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.SavePaper(ctx, p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveProject(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_projects").WithArgs(anyArgs(11)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM iteration_stats").WithArgs(testProject).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.SaveProject(ctx, domain.NewReviewProject("review", "", 1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Statistics(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT status, source, COUNT").WithArgs(testProject).
		WillReturnRows(pgxmock.NewRows([]string{"status", "source", "count"}).
			AddRow("included", "seed", 1).
			AddRow("pending", "backward", 3).
			AddRow("excluded", "backward", 2))

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 3, stats.ByStatus[domain.PaperStatusPending])
	assert.Equal(t, 5, stats.BySource[domain.PaperSourceBackward])
	assert.Equal(t, 0, stats.BySource[domain.PaperSourceForward])
	assert.NoError(t, mock.ExpectationsWereMet())
}
