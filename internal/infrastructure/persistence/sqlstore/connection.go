package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// Dialect selects the SQL database backing the store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectPostgres:
		return "pgx", nil
	case DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", string(d))
	}
}

func (d Dialect) gooseDialect() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Dialect         Dialect       // postgres or sqlite
	DSN             string        // connection string, or file path for sqlite
	MaxOpenConns    int           // Maximum open connections (default: 25, sqlite: 1)
	MaxIdleConns    int           // Maximum idle connections (default: 5, sqlite: 1)
	ConnMaxLifetime time.Duration // Connection max lifetime (default: 5min, sqlite: unlimited)
	ConnMaxIdleTime time.Duration // Connection max idle time (default: 1min, sqlite: unlimited)
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg DBConfig) (*Store, error) {
	driver, err := cfg.Dialect.driverName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		closeDB(ctx, db)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Dialect); err != nil {
		closeDB(ctx, db)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.DebugContext(ctx, "database ready", "dialect", string(cfg.Dialect))
	return NewStore(db, cfg.Dialect), nil
}

// OpenSQLite opens a SQLite store at path with default settings.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, DBConfig{Dialect: DialectSQLite, DSN: path})
}

// OpenPostgres opens a PostgreSQL store with default connection pool settings.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	return Open(ctx, DBConfig{Dialect: DialectPostgres, DSN: dsn})
}

func configurePool(db *sql.DB, cfg DBConfig) {
	// SQLite serializes writers; an in-memory database also lives only as
	// long as its single connection.
	if cfg.Dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = 1 * time.Minute
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
}

// goose keeps its dialect and filesystem in package globals.
var migrateMu sync.Mutex

// runMigrations applies the embedded migrations for dialect using goose.
func runMigrations(db *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations/"+string(dialect)); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

func closeDB(ctx context.Context, db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.ErrorContext(ctx, "failed to close database connection", "error", err)
	}
}
