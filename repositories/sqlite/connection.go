package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

// Options configures how a project file is opened
type Options struct {
	BusyTimeout time.Duration
	// JournalMode is WAL for serving; DELETE is used while initialising a new file
	// so the finished file has no side files.
	JournalMode string
}

// DefaultOptions returns the options used for serving requests
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
	}
}

// DB wraps the sql.DB bound to one project file
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
}

// Open opens the SQLite file at path. The file is created if missing.
func Open(ctx context.Context, path string, opts Options, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("sqlite database opened",
		zap.String("path", path),
		zap.String("journal_mode", opts.JournalMode))

	return &DB{
		DB:     db,
		path:   path,
		logger: logger,
	}, nil
}

// NewDB wraps an existing connection pool. Used with sqlmock in tests.
func NewDB(db *sql.DB, path string, logger *zap.Logger) *DB {
	return &DB{DB: db, path: path, logger: logger}
}

func dsn(path string, opts Options) string {
	mode := opts.JournalMode
	if mode == "" {
		mode = "WAL"
	}
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprintf("%d", opts.BusyTimeout.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", mode)
	q.Set("_synchronous", "NORMAL")
	return "file:" + path + "?" + q.Encode()
}

// Path returns the file backing this database
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Debug("closing sqlite database", zap.String("path", db.path))
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}
	return nil
}

// InitSchema creates the tables if they do not exist and records the schema version
func (db *DB) InitSchema(ctx context.Context) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	db.logger.Debug("sqlite schema initialized",
		zap.String("path", db.path),
		zap.Int("version", schemaVersion))
	return nil
}

// InitFile creates a fully initialised project file at path and closes it again.
func InitFile(ctx context.Context, path string, busyTimeout time.Duration, logger *zap.Logger) error {
	db, err := Open(ctx, path, Options{BusyTimeout: busyTimeout, JournalMode: "DELETE"}, logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}
