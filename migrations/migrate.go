package migrations

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds the registered Go migrations
var Migrations = migrate.NewMigrations()

// Migrate applies pending migrations and returns the names it ran
func Migrate(ctx context.Context, db *bun.DB, logger auth.Logger) ([]string, error) {
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migration tables")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	applied := []string{}
	if group.IsZero() {
		if logger != nil {
			logger.Info("database schema is up to date")
		}
		return applied, nil
	}

	for _, m := range group.Migrations {
		applied = append(applied, m.Name)
	}
	if logger != nil {
		logger.Info("migrations applied", "group", group.ID, "migrations", applied)
	}
	return applied, nil
}

// Rollback reverts the last applied migration group
func Rollback(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, Migrations)
	if _, err := migrator.Rollback(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rollback migrations")
	}
	return nil
}
