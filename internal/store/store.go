// Package store is the persistence layer: pages and chunks in PostgreSQL
// with the pgvector extension. It owns both tables and provides the batch
// primitives and distributed-safe acquisition the crawler and processor
// are built on.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/docharvest/docharvest/internal/logger"
)

// DefaultEmbeddingDim is the vector dimension used when none is configured.
const DefaultEmbeddingDim = 2560

// Config holds connection parameters for the database.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MinConns int32
	MaxConns int32

	// EmbeddingDim sets the dimension of the chunks.embedding column.
	EmbeddingDim int
}

// DSN renders the config as a connection string.
func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode)
}

// Store wraps a pgx connection pool over the pages and chunks tables.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

// Open connects to the database, registers pgvector types on every
// connection, and bootstraps the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	s := &Store{pool: pool, dim: dim}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("store initialized",
		"host", cfg.Host,
		"database", cfg.Database,
		"embedding_dim", dim)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// migrate creates the extension, tables, and scheduling indexes. All
// statements are idempotent.
func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS pages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			url TEXT UNIQUE NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			crawl_count INTEGER NOT NULL DEFAULT 0,
			process_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_crawled_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS idx_pages_crawl_order
			ON pages (crawl_count, last_crawled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_process_order
			ON pages (last_crawled_at DESC)
			WHERE content <> '' AND processed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks (url)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// Retriable reports whether err is a transient failure worth retrying:
// connection loss, network errors, or serialization conflicts. Schema and
// constraint errors are not retriable.
func Retriable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01",                   // deadlock_detected
			"57P01",                   // admin_shutdown
			"08000", "08003", "08006": // connection exceptions
			return true
		}
		return false
	}

	return pgconn.SafeToRetry(err)
}
