package storage

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
)

// FileStore holds transform sources and results between the caller and
// the engine. Implementations must be safe for concurrent use.
type FileStore interface {
	// Save stores the content of r and returns a new reference. size is
	// -1 when unknown.
	Save(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)

	// Retrieve opens the file for ref. The caller closes the reader.
	Retrieve(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes the file for ref.
	Delete(ctx context.Context, ref string) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// tenantSeparator joins the tenant prefix and the id of a reference.
const tenantSeparator = "."

// NewReference returns a fresh reference, prefixed with the tenant from
// ctx when one is set.
func NewReference(ctx context.Context) string {
	id := uuid.New().String()
	if tenant := GetTenant(ctx); tenant != "" {
		return tenant + tenantSeparator + id
	}
	return id
}

// CheckReference verifies that ref is well formed and visible to the
// tenant in ctx. Tenants may not read references issued to another
// tenant; a caller without a tenant sees everything.
func CheckReference(ctx context.Context, ref string) error {
	tenant, id := SplitReference(ref)
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidReference
	}
	if want := GetTenant(ctx); want != "" && tenant != want {
		return ErrNotFound
	}
	return nil
}

// SplitReference returns the tenant prefix (possibly empty) and the id
// part of ref.
func SplitReference(ref string) (tenant, id string) {
	if i := strings.LastIndex(ref, tenantSeparator); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}
