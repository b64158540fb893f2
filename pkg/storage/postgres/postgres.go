// Package postgres provides a PostgreSQL implementation of storage.FileStore.
// It uses pgx/v5 for connection pooling and keeps file content in a bytea
// column, which suits the small intermediate files of transform pipelines.
package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
)

const backend = "postgres"

// Store is a PostgreSQL-backed FileStore.
type Store struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// Ensure Store implements storage.FileStore at compile time.
var _ storage.FileStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, retention: cfg.Retention}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Save stores the content of r under a new reference.
func (s *Store) Save(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}

	ref := storage.NewReference(ctx)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO files (ref, tenant_id, content_type, size, data)
		VALUES ($1, $2, $3, $4, $5)
	`, ref, storage.GetTenant(ctx), contentType, int64(len(data)), data)
	observability.RecordStoreOp(backend, "save", err)
	if err != nil {
		return "", fmt.Errorf("inserting file: %w", err)
	}

	debug.Log("storage", "saved file", "backend", backend, "ref", ref, "size", len(data))
	return ref, nil
}

// Retrieve loads the file for ref.
func (s *Store) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return nil, err
	}

	query := "SELECT data FROM files WHERE ref = $1"
	args := []any{ref}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	var data []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		observability.RecordStoreOp(backend, "retrieve", storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}
	observability.RecordStoreOp(backend, "retrieve", err)
	if err != nil {
		return nil, fmt.Errorf("querying file: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the file for ref.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return err
	}

	query := "DELETE FROM files WHERE ref = $1"
	args := []any{ref}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	observability.RecordStoreOp(backend, "delete", err)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Purge deletes files older than the configured retention and returns
// how many were removed. It does nothing when no retention is set.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	result, err := s.pool.Exec(ctx,
		"DELETE FROM files WHERE created_at < $1",
		time.Now().Add(-s.retention),
	)
	if err != nil {
		return 0, fmt.Errorf("purging files: %w", err)
	}
	return result.RowsAffected(), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
