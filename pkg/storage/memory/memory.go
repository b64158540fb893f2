// Package memory provides an in-memory implementation of storage.FileStore
// for tests and standalone engines. Files are lost when the process
// restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
)

const backend = "memory"

// entry holds a stored file and its metadata.
type entry struct {
	data        []byte
	contentType string
	lruElem     *list.Element // position in LRU list
}

// Store is an in-memory FileStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.FileStore at compile time.
var _ storage.FileStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently used file is evicted once
// maxSize files are held.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// Save reads r fully and stores it under a new reference.
func (s *Store) Save(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		observability.RecordStoreOp(backend, "save", err)
		return "", fmt.Errorf("reading content: %w", err)
	}

	ref := storage.NewReference(ctx)

	s.mu.Lock()
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}
	elem := s.lruList.PushFront(ref)
	s.entries[ref] = &entry{data: buf.Bytes(), contentType: contentType, lruElem: elem}
	s.mu.Unlock()

	observability.RecordStoreOp(backend, "save", nil)
	return ref, nil
}

// Retrieve returns a reader over the stored bytes.
func (s *Store) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := storage.CheckReference(ctx, ref); err != nil {
		observability.RecordStoreOp(backend, "retrieve", err)
		return nil, err
	}

	s.mu.Lock()
	e, ok := s.entries[ref]
	if ok {
		s.lruList.MoveToFront(e.lruElem)
	}
	s.mu.Unlock()

	if !ok {
		observability.RecordStoreOp(backend, "retrieve", storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}
	observability.RecordStoreOp(backend, "retrieve", nil)
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// ContentType returns the content type recorded for ref.
func (s *Store) ContentType(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ref]
	if !ok {
		return "", false
	}
	return e.contentType, true
}

// Delete removes the file for ref.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := storage.CheckReference(ctx, ref); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ref]
	if !ok {
		observability.RecordStoreOp(backend, "delete", storage.ErrNotFound)
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, ref)
	observability.RecordStoreOp(backend, "delete", nil)
	return nil
}

// Len returns the number of stored files.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	ref := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, ref)
}
