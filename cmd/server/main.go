// Package main provides the entry point for the snowball review API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/config"
	httpserver "github.com/helixir/snowball-review/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "Path to the configuration file")
	project := flag.String("project", "", "Project location within the storage backend (defaults to the configured one)")
	flag.Parse()

	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg.Logging, "server")
	logger.Info().Msg("snowball review server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to release resources")
		}
	}()

	store, err := a.OpenStorage(ctx, *project)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("storage opened")

	scorer, err := a.Scorer("")
	if err != nil {
		return fmt.Errorf("create scorer: %w", err)
	}
	engine := a.Engine(scorer)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.Address(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestTimeout:  cfg.Server.RequestTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}

	var opts []httpserver.Option
	if a.Metrics != nil {
		opts = append(opts, httpserver.WithMetrics(a.Metrics, promhttp.Handler()))
	}
	httpSrv := httpserver.NewServer(httpCfg, engine, store, logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Bool("metrics", a.Metrics != nil).
			Msg("HTTP review API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down snowball review server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("snowball review server stopped")
	return nil
}
