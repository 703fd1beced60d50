package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/aryan0dhankhar/visiongate/pkg/database/migrations"
)

func configureGoose() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return nil
}

// Migrate applies pending embedded migrations
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if err := configureGoose(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cp.logger.Info("applying migrations")
	if err := goose.UpContext(runCtx, cp.db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	cp.logger.Info("migrations applied")
	return nil
}

// MigrationStatus logs applied and pending migrations
func (cp *ConnectionPool) MigrationStatus(ctx context.Context) error {
	if err := configureGoose(); err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, cp.db, "."); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// Rollback reverts the latest migration, or down to targetVersion when positive
func (cp *ConnectionPool) Rollback(ctx context.Context, targetVersion int64) error {
	if err := configureGoose(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if targetVersion > 0 {
		cp.logger.Info("rolling back migrations", slog.Int64("target", targetVersion))
		if err := goose.DownToContext(runCtx, cp.db, ".", targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
		return nil
	}

	cp.logger.Info("rolling back latest migration")
	if err := goose.DownContext(runCtx, cp.db, "."); err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	return nil
}
