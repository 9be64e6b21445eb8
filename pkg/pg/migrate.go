package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// logger is the minimal structured-logging interface required by Migrate.
// Satisfied by *slog.Logger.
type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Migrate applies schema migrations with goose. Goose requires a database/sql
// handle, so the pgx pool is bridged through stdlib; the bridge shares the
// pool's connections.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, log logger) error {
	if cfg.MigrationsPath == "" {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationPathNotProvided)
	}

	if _, err := os.Stat(cfg.MigrationsPath); err != nil {
		if os.IsNotExist(err) {
			return errors.Join(ErrMigrationsDirNotFound, err)
		}
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration db handle", "error", err)
		}
	}(db)

	// Route goose output through the application logger instead of stdout.
	goose.SetLogger(&gooseLogAdapter{ctx: ctx, log: log})
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := goose.UpContext(ctx, db, cfg.MigrationsPath); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	return nil
}

// gooseLogAdapter bridges goose's Printf-style logging to structured logging.
type gooseLogAdapter struct {
	ctx context.Context
	log logger
}

func (a *gooseLogAdapter) Fatalf(format string, v ...any) {
	a.log.ErrorContext(a.ctx, fmt.Sprintf(format, v...))
}

func (a *gooseLogAdapter) Printf(format string, v ...any) {
	a.log.InfoContext(a.ctx, fmt.Sprintf(format, v...))
}
