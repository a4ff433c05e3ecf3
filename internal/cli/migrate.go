package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/victornm/trivia/internal/leaderboard/migrations"
	"github.com/victornm/trivia/internal/server"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the leaderboard schema to Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if err := setupLogger(c.Log.Level); err != nil {
				return err
			}

			return runMigrations(cmd.Context(), c.Postgres.Leaderboard, rollback)
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last migration group")
	return cmd
}

func runMigrations(ctx context.Context, c server.PostgresConfig, rollback bool) error {
	if c.Addr == "" {
		return fmt.Errorf("migrate: postgres address not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(c.DSN() + "?sslmode=disable")))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	m := migrate.NewMigrator(db, migrations.Migrations)
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("migrate: init: %w", err)
	}

	if rollback {
		g, err := m.Rollback(ctx)
		if err != nil {
			return fmt.Errorf("migrate: rollback: %w", err)
		}
		slog.InfoContext(ctx, "migrate: rolled back", "group", g.String())
		return nil
	}

	g, err := m.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if g.IsZero() {
		slog.InfoContext(ctx, "migrate: nothing to apply")
		return nil
	}

	slog.InfoContext(ctx, "migrate: applied", "group", g.String())
	return nil
}
