// Package redis provides a Redis implementation of storage.FileStore.
// Files expire after a configurable TTL, which suits transient transform
// results that callers fetch once.
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
)

const (
	backend   = "redis"
	keyPrefix = "wandel:file:"

	fieldData = "data"
	fieldType = "type"
)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = time.Hour

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store keeps each file as a hash of content and content type.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Ensure Store implements storage.FileStore at compile time.
var _ storage.FileStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func key(ref string) string {
	return keyPrefix + ref
}

// Save stores r under a new reference with the configured TTL.
func (s *Store) Save(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}

	ref := storage.NewReference(ctx)
	k := key(ref)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldData, data, fieldType, contentType)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	observability.RecordStoreOp(backend, "save", err)
	if err != nil {
		return "", fmt.Errorf("storing file: %w", err)
	}
	debug.Log("storage", "saved file", "backend", backend, "ref", ref, "size", len(data), "ttl", s.ttl)
	return ref, nil
}

// Retrieve loads the file content for ref.
func (s *Store) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return nil, err
	}
	data, err := s.client.HGet(ctx, key(ref), fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.RecordStoreOp(backend, "retrieve", storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}
	observability.RecordStoreOp(backend, "retrieve", err)
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the file for ref.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return err
	}
	n, err := s.client.Del(ctx, key(ref)).Result()
	observability.RecordStoreOp(backend, "delete", err)
	if err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
