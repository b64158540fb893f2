// Package minio provides an S3-compatible implementation of
// storage.FileStore backed by minio-go.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
)

const backend = "minio"

// Config holds the S3 endpoint and bucket settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool

	// CreateBucket makes the bucket on startup if it does not exist.
	CreateBucket bool
}

// Store keeps each file as one object in a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// Ensure Store implements storage.FileStore at compile time.
var _ storage.FileStore = (*Store)(nil)

// New connects to the endpoint and checks the bucket exists, creating it
// when configured to.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("minio: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	s := &Store{client: client, bucket: cfg.Bucket}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if !cfg.CreateBucket {
			return nil, fmt.Errorf("bucket does not exist: %s", cfg.Bucket)
		}
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}
	return s, nil
}

// Save uploads r as a new object. An unknown size (-1) makes minio-go
// buffer the upload in multipart chunks.
func (s *Store) Save(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	ref := storage.NewReference(ctx)
	if size == 0 {
		size = -1
	}
	_, err := s.client.PutObject(ctx, s.bucket, ref, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	observability.RecordStoreOp(backend, "save", err)
	if err != nil {
		return "", fmt.Errorf("uploading object: %w", translate(err))
	}
	debug.Log("storage", "saved file", "backend", backend, "ref", ref)
	return ref, nil
}

// Retrieve opens the object for ref. The object is stat'ed first so a
// missing file is reported here rather than on the first read.
func (s *Store) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err == nil {
		_, err = obj.Stat()
		if err != nil {
			obj.Close()
		}
	}
	observability.RecordStoreOp(backend, "retrieve", err)
	if err != nil {
		return nil, translate(err)
	}
	return obj, nil
}

// Delete removes the object for ref.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return err
	}
	// RemoveObject succeeds for missing keys, so look first.
	if _, err := s.client.StatObject(ctx, s.bucket, ref, minio.StatObjectOptions{}); err != nil {
		observability.RecordStoreOp(backend, "delete", err)
		return translate(err)
	}
	err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{})
	observability.RecordStoreOp(backend, "delete", err)
	if err != nil {
		return fmt.Errorf("removing object: %w", translate(err))
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket does not exist: %s", s.bucket)
	}
	return nil
}

// Close is a no-op; minio-go holds no long-lived connections of its own.
func (s *Store) Close() error {
	return nil
}

// translate maps S3 error responses onto the storage sentinels.
func translate(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return storage.ErrNotFound
	case resp.Code == "EntityTooLarge" || resp.Code == "QuotaExceeded":
		return fmt.Errorf("%w: %s", storage.ErrInsufficientStorage, resp.Message)
	}
	return err
}
