package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/snowball-review/internal/app"
	"github.com/helixir/snowball-review/internal/config"
	"github.com/helixir/snowball-review/internal/domain"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres storage schema",
	}
	cmd.AddCommand(newMigrateActionCommand(ctx, app.MigrateUp, "Apply all pending migrations"))
	cmd.AddCommand(newMigrateActionCommand(ctx, app.MigrateDown, "Roll back all migrations"))
	cmd.AddCommand(newMigrateActionCommand(ctx, app.MigrateVersion, "Print the current schema version"))
	return cmd
}

func newMigrateActionCommand(ctx *commandContext, action app.MigrationAction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(action),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.StoragePostgres {
				return domain.NewConfigurationError("storage.driver",
					fmt.Sprintf("migrations apply to the postgres driver, not %q", cfg.Storage.Driver))
			}

			a := &app.App{Config: cfg, Logger: app.NewLogger(cfg.Logging, "migrate")}
			status, err := a.Migrate(cmd.Context(), action, 0)
			if err != nil {
				return err
			}
			dirty := ""
			if status.Dirty {
				dirty = " (dirty)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d%s\n", status.Version, dirty)
			return nil
		},
	}
}
