//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/snowball-review/internal/config"
	"github.com/helixir/snowball-review/internal/database"
	"github.com/helixir/snowball-review/internal/domain"
)

func setupDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("snowball"),
		tcpostgres.WithUsername("snowball"),
		tcpostgres.WithPassword("snowball"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		User:              "snowball",
		Password:          "snowball",
		Name:              "snowball",
		SSLMode:           config.SSLModeDisable,
		MaxConns:          4,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
	db, err := database.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	migrator, err := database.NewMigrator(db, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, migrator.Close())

	return db
}

func TestIntegration_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupDatabase(t)

	s, err := New(db, "thesis")
	require.NoError(t, err)

	_, err = s.LoadProject(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	project := domain.NewReviewProject("review", "desc", 3)
	project.FilterCriteria.MinYear = domain.IntPtr(2020)
	seed := domain.NewPaper(&domain.Paper{Title: "Seed", DOI: "10.1/seed", Year: domain.IntPtr(2022)}, domain.PaperSourceSeed, 0)
	seed.Status = domain.PaperStatusIncluded
	project.AddSeed(seed.ID)
	require.NoError(t, s.Commit(ctx, project, []*domain.Paper{seed}))

	ref := domain.NewPaper(&domain.Paper{Title: "Ref"}, domain.PaperSourceBackward, 1)
	ref.AddCitation(seed.ID)
	seed.AddReference(ref.ID)
	project.CurrentIteration = 1
	project.IterationStats[1] = domain.IterationStats{Iteration: 1, Discovered: 1, Backward: 1, ForReview: 1, Timestamp: time.Now().UTC()}
	require.NoError(t, s.Commit(ctx, project, []*domain.Paper{seed, ref}))

	loaded, err := s.LoadProject(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentIteration)
	assert.Equal(t, []string{seed.ID}, loaded.SeedPaperIDs)
	assert.Equal(t, 2020, *loaded.FilterCriteria.MinYear)
	assert.Equal(t, 1, loaded.IterationStats[1].Backward)

	papers, err := s.LoadAllPapers(ctx)
	require.NoError(t, err)
	require.Len(t, papers, 2)

	gotSeed, err := s.LoadPaper(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ref.ID}, gotSeed.References)

	var edges int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM paper_edges WHERE project = $1", "thesis").Scan(&edges))
	assert.Equal(t, 1, edges)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.PaperStatusIncluded])

	other, err := New(db, "other")
	require.NoError(t, err)
	otherPapers, err := other.LoadAllPapers(ctx)
	require.NoError(t, err)
	assert.Empty(t, otherPapers)
}
