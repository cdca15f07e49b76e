// Package app assembles the snowball engine and its collaborators from
// configuration. Both the CLI and the review API server build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/aggregator"
	"github.com/helixir/snowball-review/internal/config"
	"github.com/helixir/snowball-review/internal/database"
	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/observability"
	"github.com/helixir/snowball-review/internal/papersources"
	"github.com/helixir/snowball-review/internal/papersources/arxiv"
	"github.com/helixir/snowball-review/internal/papersources/openalex"
	"github.com/helixir/snowball-review/internal/papersources/pubmed"
	"github.com/helixir/snowball-review/internal/papersources/semanticscholar"
	"github.com/helixir/snowball-review/internal/pdf"
	"github.com/helixir/snowball-review/internal/scoring"
	"github.com/helixir/snowball-review/internal/snowball"
	"github.com/helixir/snowball-review/internal/storage"
	"github.com/helixir/snowball-review/internal/storage/filestore"
	"github.com/helixir/snowball-review/internal/storage/postgres"
	"github.com/helixir/snowball-review/internal/storage/s3store"
)

// App holds the wired components for one process.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
	Registry   *papersources.Registry
	Aggregator *aggregator.Aggregator
	PDF        *pdf.Parser

	registerer prometheus.Registerer
	db         *database.DB
	closers    []func() error
}

// Option configures New.
type Option func(*App)

// WithRegisterer registers metrics with reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) {
		a.registerer = reg
	}
}

// WithRegistry replaces the provider registry built from configuration.
func WithRegistry(r *papersources.Registry) Option {
	return func(a *App) {
		a.Registry = r
	}
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig, component string) zerolog.Logger {
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: cfg.TimeFormat,
		Service:    "snowball",
	})
	if component != "" {
		logger = logger.With().Str("component", component).Logger()
	}
	return logger
}

// New wires providers, the aggregator and the PDF parser. Storage is opened
// separately with OpenStorage.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, domain.NewConfigurationError("config", "configuration is required")
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetricsWith(a.registerer, cfg.Metrics.Namespace)
	}
	if a.Registry == nil {
		a.Registry = BuildRegistry(cfg.Providers)
	}
	if len(a.Registry.Enabled()) == 0 {
		return nil, domain.NewConfigurationError("providers", "no provider is enabled")
	}

	a.Aggregator = aggregator.New(a.Registry, aggregator.Config{
		MaxConcurrency:  cfg.Aggregator.MaxConcurrency,
		CallTimeout:     cfg.Aggregator.CallTimeout,
		MaxAttempts:     cfg.Aggregator.MaxAttempts,
		InitialInterval: cfg.Aggregator.InitialBackoff,
		MaxInterval:     cfg.Aggregator.MaxBackoff,
		MaxRetryAfter:   cfg.Aggregator.MaxRetryAfter,
	}, aggregator.WithLogger(logger.With().Str("component", "aggregator").Logger()),
		aggregator.WithMetrics(a.Metrics))

	a.PDF = pdf.NewParser(
		pdf.WithDownloader(pdf.NewDownloader(pdf.Config{
			Timeout:              cfg.PDF.Timeout,
			MaxSize:              cfg.PDF.MaxSizeBytes,
			AllowPrivateNetworks: cfg.PDF.AllowPrivateNetworks,
		})),
		pdf.WithMaxPages(cfg.PDF.MaxPages),
		pdf.WithLogger(logger.With().Str("component", "pdf").Logger()),
	)

	a.Logger.Debug().
		Int("providers", len(a.Registry.Enabled())).
		Int("graph_providers", len(a.Registry.GraphProviders())).
		Bool("metrics", a.Metrics != nil).
		Msg("application wired")
	return a, nil
}

// BuildRegistry creates every configured provider and orders them by
// providers.order.
func BuildRegistry(cfg config.ProvidersConfig) *papersources.Registry {
	s2 := cfg.SemanticScholar
	oa := cfg.OpenAlex
	pm := cfg.PubMed
	ax := cfg.ArXiv

	registry := papersources.NewRegistry(
		semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:   s2.BaseURL,
			APIKey:    s2.APIKey,
			Timeout:   s2.Timeout,
			RateLimit: s2.RateLimit,
			BurstSize: s2.Burst,
			MaxEdges:  s2.MaxEdges,
			Enabled:   s2.Enabled,
		}, nil),
		openalex.New(openalex.Config{
			BaseURL:   oa.BaseURL,
			Email:     oa.Email,
			Timeout:   oa.Timeout,
			RateLimit: oa.RateLimit,
			BurstSize: oa.Burst,
			MaxEdges:  oa.MaxEdges,
			Enabled:   oa.Enabled,
		}),
		pubmed.New(pubmed.Config{
			BaseURL:   pm.BaseURL,
			APIKey:    pm.APIKey,
			Email:     pm.Email,
			Timeout:   pm.Timeout,
			RateLimit: pm.RateLimit,
			BurstSize: pm.Burst,
			MaxEdges:  pm.MaxEdges,
			Enabled:   pm.Enabled,
		}),
		arxiv.New(arxiv.Config{
			BaseURL:   ax.BaseURL,
			Timeout:   ax.Timeout,
			RateLimit: ax.RateLimit,
			BurstSize: ax.Burst,
			Enabled:   ax.Enabled,
		}),
	)

	order := make([]domain.SourceType, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		if st, ok := SourceTypeFor(name); ok {
			order = append(order, st)
		}
	}
	registry.Reorder(order)
	return registry
}

// SourceTypeFor maps a providers.order name onto its source type.
func SourceTypeFor(name string) (domain.SourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case config.ProviderSemanticScholar:
		return domain.SourceTypeSemanticScholar, true
	case config.ProviderOpenAlex:
		return domain.SourceTypeOpenAlex, true
	case config.ProviderPubMed:
		return domain.SourceTypePubMed, true
	case config.ProviderArXiv:
		return domain.SourceTypeArXiv, true
	default:
		return "", false
	}
}

// Scorer builds the relevance scorer for method. An empty method falls back
// to scoring.method and then to no scorer at all.
func (a *App) Scorer(method string) (scoring.Scorer, error) {
	if method == "" {
		method = a.Config.Scoring.Method
	}
	if method == "" {
		return nil, nil
	}
	sc := a.Config.Scoring
	return scoring.New(method, scoring.Config{
		Provider:   sc.Provider,
		Model:      sc.Model,
		APIKey:     sc.APIKey,
		BaseURL:    sc.BaseURL,
		BatchSize:  sc.BatchSize,
		Timeout:    sc.Timeout,
		MaxRetries: sc.MaxRetries,
		Logger:     a.Logger.With().Str("component", "scoring").Logger(),
		Metrics:    a.Metrics,
	})
}

// Engine builds a snowball engine, optionally with a scorer.
func (a *App) Engine(scorer scoring.Scorer) *snowball.Engine {
	opts := []snowball.Option{
		snowball.WithLogger(a.Logger.With().Str("component", "snowball").Logger()),
		snowball.WithMetrics(a.Metrics),
		snowball.WithPDFParser(a.PDF),
		snowball.WithResolver(dedup.NewResolver(dedup.Config{
			TitleThreshold:       a.Config.Dedup.TitleThreshold,
			ConflictThreshold:    a.Config.Dedup.ConflictThreshold,
			RequireAuthorOverlap: a.Config.Dedup.RequireAuthorOverlap,
		})),
	}
	if scorer != nil {
		opts = append(opts, snowball.WithScorer(scorer))
	}
	return snowball.New(a.Aggregator, opts...)
}

// OpenStorage opens the configured backend. location names the project
// within the backend: a directory for the file driver, a key prefix below
// storage.s3.prefix for S3, and the project key for Postgres. An empty
// location uses the configured default.
func (a *App) OpenStorage(ctx context.Context, location string) (storage.Storage, error) {
	sc := a.Config.Storage
	logger := a.Logger.With().Str("component", "storage").Str("driver", sc.Driver).Logger()

	switch sc.Driver {
	case config.StorageFile, "":
		dir := location
		if dir == "" {
			dir = sc.Dir
		}
		store, err := filestore.New(dir, filestore.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StorageS3:
		client, err := s3store.NewClient(ctx, sc.S3)
		if err != nil {
			return nil, err
		}
		prefix := sc.S3.Prefix
		if location != "" {
			prefix = path.Join(prefix, location)
		}
		store, err := s3store.New(client, sc.S3.Bucket, prefix, s3store.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StoragePostgres:
		db, err := a.openDatabase(ctx)
		if err != nil {
			return nil, err
		}
		project := location
		if project == "" {
			project = sc.Database.Project
		}
		store, err := postgres.New(db, project, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, domain.NewConfigurationError("storage.driver", fmt.Sprintf("unknown storage driver %q", sc.Driver))
	}
}

// Database returns the Postgres pool, connecting on first use.
func (a *App) Database(ctx context.Context) (*database.DB, error) {
	return a.openDatabase(ctx)
}

func (a *App) openDatabase(ctx context.Context) (*database.DB, error) {
	if a.db != nil {
		return a.db, nil
	}

	dbCfg := a.Config.Storage.Database
	db, err := database.New(ctx, &dbCfg, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if dbCfg.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, a.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		upErr := migrator.Up()
		if closeErr := migrator.Close(); closeErr != nil {
			a.Logger.Warn().Err(closeErr).Msg("failed to close migrator")
		}
		if upErr != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", upErr)
		}
	}

	a.db = db
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})
	return db, nil
}

// Close releases resources opened by the app.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.db = nil
	return errors.Join(errs...)
}
