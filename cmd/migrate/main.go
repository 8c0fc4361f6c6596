// Command migrate applies the embedded schema migrations to Postgres.
//
// Usage:
//
//	migrate [-database-url URL] [-table schema_migrations] [-reset]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"

	"github.com/sajpe/visitgate/migrations"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		table       = flag.String("table", migrations.DefaultTable, "table recording applied versions")
		reset       = flag.Bool("reset", false, "roll back every applied migration instead of applying")
		timeout     = flag.Duration("timeout", time.Minute, "overall deadline")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "migrate: DATABASE_URL or -database-url is required")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, *databaseURL, *table, *reset, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, table string, reset bool, logger *slog.Logger) error {
	connector, err := pq.NewConnector(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if reset {
		err = migrations.Reset(ctx, db, table, logger)
	} else {
		err = migrations.Up(ctx, db, table, logger)
	}
	if err != nil {
		return err
	}

	version, err := migrations.Version(ctx, db, table, logger)
	if err != nil {
		return err
	}
	logger.Info("schema ready", "version", version)
	return nil
}
