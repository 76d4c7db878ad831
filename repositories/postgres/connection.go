// Package postgres is the remote replica that projects are synced into.
// Every table carries a project column; rows are keyed by (project, id).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// PoolOptions configures the connection pool
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolOptions returns a small pool suited to a background syncer
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// Open creates a new connection pool for dsn and verifies it
func Open(ctx context.Context, dsn string, opts PoolOptions, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("replica connection established",
		zap.String("connection", Redact(dsn)))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// NewDB wraps an existing *sql.DB
func NewDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Redact hides the password of a URL-style DSN for logging
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing replica connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("replica health check failed: %w", err)
	}
	return nil
}

// InitSchema creates the replica tables
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_prompts (
			project VARCHAR(128) NOT NULL,
			id VARCHAR(64) NOT NULL,
			title TEXT,
			comment TEXT,
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL,
			prompt JSONB,
			PRIMARY KEY (project, id)
		);

		CREATE TABLE IF NOT EXISTS chat_responses (
			project VARCHAR(128) NOT NULL,
			id VARCHAR(64) NOT NULL,
			title TEXT,
			comment TEXT,
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL,
			prompt_id VARCHAR(64) NOT NULL,
			role TEXT,
			content TEXT,
			stop_reason TEXT,
			tok_in BIGINT,
			tok_out BIGINT,
			tok_max BIGINT,
			model TEXT,
			temperature DOUBLE PRECISION,
			provider TEXT,
			meta JSONB,
			PRIMARY KEY (project, id)
		);

		CREATE TABLE IF NOT EXISTS completion_prompts (
			project VARCHAR(128) NOT NULL,
			id VARCHAR(64) NOT NULL,
			title TEXT,
			comment TEXT,
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL,
			prompt TEXT,
			PRIMARY KEY (project, id)
		);

		CREATE TABLE IF NOT EXISTS completion_responses (
			project VARCHAR(128) NOT NULL,
			id VARCHAR(64) NOT NULL,
			title TEXT,
			comment TEXT,
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL,
			prompt_id VARCHAR(64) NOT NULL,
			content TEXT,
			stop_reason TEXT,
			tok_in BIGINT,
			tok_out BIGINT,
			tok_max BIGINT,
			model TEXT,
			temperature DOUBLE PRECISION,
			provider TEXT,
			meta JSONB,
			PRIMARY KEY (project, id)
		);

		CREATE INDEX IF NOT EXISTS idx_chat_responses_prompt ON chat_responses(project, prompt_id);
		CREATE INDEX IF NOT EXISTS idx_completion_responses_prompt ON completion_responses(project, prompt_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize replica schema: %w", err)
	}

	db.logger.Info("replica schema initialized")
	return nil
}
