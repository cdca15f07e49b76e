package app

import (
	"context"
	"fmt"

	"github.com/helixir/snowball-review/internal/database"
	"github.com/helixir/snowball-review/internal/domain"
)

// MigrationAction names a schema migration command.
type MigrationAction string

const (
	MigrateUp      MigrationAction = "up"
	MigrateDown    MigrationAction = "down"
	MigrateSteps   MigrationAction = "steps"
	MigrateForce   MigrationAction = "force"
	MigrateVersion MigrationAction = "version"
)

// MigrationStatus is the schema version after a migration command.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrate runs a migration command against the configured Postgres
// database. n is the step count for MigrateSteps and the version for
// MigrateForce.
func (a *App) Migrate(ctx context.Context, action MigrationAction, n int) (MigrationStatus, error) {
	dbCfg := a.Config.Storage.Database
	db, err := database.New(ctx, &dbCfg, a.Logger)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, a.Logger)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			a.Logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	switch action {
	case MigrateUp:
		a.Logger.Info().Msg("running all pending migrations")
		err = migrator.Up()
	case MigrateDown:
		a.Logger.Warn().Msg("rolling back all migrations")
		err = migrator.Down()
	case MigrateSteps:
		a.Logger.Info().Int("steps", n).Msg("running migration steps")
		err = migrator.Steps(n)
	case MigrateForce:
		a.Logger.Warn().Int("version", n).Msg("forcing migration version")
		err = migrator.Force(n)
	case MigrateVersion:
	default:
		return MigrationStatus{}, domain.NewValidationError("action", fmt.Sprintf("unknown migration action %q", action))
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migrate %s: %w", action, err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}
