// Package migrations embeds the SQL schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// DefaultTable records applied versions.
const DefaultTable = "schema_migrations"

var ErrFailedToApplyMigrations = errors.New("failed to apply migrations")

// goose keeps its settings in package globals.
var mu sync.Mutex

func setup(table string, logger *slog.Logger) error {
	if table == "" {
		table = DefaultTable
	}
	goose.SetBaseFS(FS)
	goose.SetTableName(table)
	goose.SetLogger(slogAdapter{logger})
	return goose.SetDialect("postgres")
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, table string, logger *slog.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(table, logger); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// Reset rolls back every applied migration.
func Reset(ctx context.Context, db *sql.DB, table string, logger *slog.Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(table, logger); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.ResetContext(ctx, db, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB, table string, logger *slog.Logger) (int64, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(table, logger); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}

// slogAdapter routes goose output through slog.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Fatalf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...))
}

func (a slogAdapter) Printf(format string, v ...any) {
	a.log.Info(fmt.Sprintf(format, v...))
}
