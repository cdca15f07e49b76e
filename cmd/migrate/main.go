// Package main provides a CLI tool for database migrations of the Postgres
// storage backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Define CLI flags.
	configFile := flag.String("config", "", "Path to the configuration file")
	up := flag.Bool("up", false, "Run all pending migrations")
	down := flag.Bool("down", false, "Roll back all migrations")
	steps := flag.Int("steps", 0, "Run N migration steps (positive=up, negative=down)")
	version := flag.Bool("version", false, "Print the current migration version")
	force := flag.Int("force", -1, "Force set migration version (use to recover from failed migrations)")
	flag.Parse()

	// Validate that exactly one action is specified.
	var actions []app.MigrationAction
	n := 0
	if *up {
		actions = append(actions, app.MigrateUp)
	}
	if *down {
		actions = append(actions, app.MigrateDown)
	}
	if *steps != 0 {
		actions = append(actions, app.MigrateSteps)
		n = *steps
	}
	if *version {
		actions = append(actions, app.MigrateVersion)
	}
	if *force >= 0 {
		actions = append(actions, app.MigrateForce)
		n = *force
	}

	if len(actions) == 0 {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nPlease specify one of: -up, -down, -steps N, -version, -force V")
		return fmt.Errorf("no action specified")
	}
	if len(actions) > 1 {
		return fmt.Errorf("specify only one action at a time")
	}

	// Secrets may live in a local .env file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Console output for the CLI tool.
	cfg.Logging.Format = "console"
	cfg.Logging.Output = "stdout"
	logger := app.NewLogger(cfg.Logging, "migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a := &app.App{Config: cfg, Logger: logger}
	status, err := a.Migrate(ctx, actions[0], n)
	if err != nil {
		return err
	}

	logger.Info().
		Uint("version", status.Version).
		Bool("dirty", status.Dirty).
		Msg("current migration version")
	return nil
}
