package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rhuss/wandel/pkg/storage"
)

func save(t *testing.T, s *Store, ctx context.Context, content string) string {
	t.Helper()
	ref, err := s.Save(ctx, strings.NewReader(content), int64(len(content)), "text/plain")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return ref
}

func read(t *testing.T, s *Store, ctx context.Context, ref string) string {
	t.Helper()
	rc, err := s.Retrieve(ctx, ref)
	if err != nil {
		t.Fatalf("Retrieve(%q) failed: %v", ref, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	return string(b)
}

func TestSaveAndRetrieve(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	ref := save(t, s, ctx, "hello")
	if got := read(t, s, ctx, ref); got != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
	if ct, ok := s.ContentType(ref); !ok || ct != "text/plain" {
		t.Errorf("ContentType = %q, %v", ct, ok)
	}
}

func TestRetrieveNotFound(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	_, err := s.Retrieve(ctx, storage.NewReference(ctx))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = s.Retrieve(ctx, "bogus")
	if !errors.Is(err, storage.ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	ref := save(t, s, ctx, "gone")
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Retrieve(ctx, ref); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, ref); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New(0)
	acme := storage.SetTenant(context.Background(), "acme")
	other := storage.SetTenant(context.Background(), "other")

	ref := save(t, s, acme, "secret")

	if _, err := s.Retrieve(other, ref); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(other, ref); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant delete: expected ErrNotFound, got %v", err)
	}
	if got := read(t, s, acme, ref); got != "secret" {
		t.Errorf("content = %q", got)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	first := save(t, s, ctx, "1")
	second := save(t, s, ctx, "2")

	// Touch first so second becomes least recently used.
	read(t, s, ctx, first)
	third := save(t, s, ctx, "3")

	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if _, err := s.Retrieve(ctx, second); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second should have been evicted, got %v", err)
	}
	read(t, s, ctx, first)
	read(t, s, ctx, third)
}

func TestHealthCheckAndClose(t *testing.T) {
	s := New(0)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
