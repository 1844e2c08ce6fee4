// Package database opens the flow log database and applies its migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Config holds database configuration settings.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Connect opens the pool and pings it once.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// MigrationsSource returns the migrations directory URL for driver.
func MigrationsSource(dir, driver string) string {
	if driver == "mysql" {
		return "file://" + dir + "/mysql"
	}
	return "file://" + dir + "/postgresql"
}

// Migrate applies every pending migration found in dir for cfg.Driver.
// Having nothing to apply is not an error.
func Migrate(logger *slog.Logger, cfg Config, dir string) error {
	logger.Info("running database migrations", slog.String("driver", cfg.Driver))

	m, err := migrate.New(MigrationsSource(dir, cfg.Driver), migrationURL(cfg))
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		sourceErr, databaseErr := m.Close()
		if sourceErr != nil || databaseErr != nil {
			logger.Error("failed to close the migrate",
				slog.Any("source_error", sourceErr),
				slog.Any("database_error", databaseErr),
			)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}

// migrationURL prefixes MySQL DSNs with the scheme golang-migrate dispatches on.
func migrationURL(cfg Config) string {
	if cfg.Driver == "mysql" {
		return "mysql://" + cfg.ConnectionString
	}
	return cfg.ConnectionString
}
