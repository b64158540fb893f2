// Package storage defines the shared file store used by the asynchronous
// transform path, together with the sentinel errors, reference helpers,
// and tenant context shared by every backend.
//
// Backends live in subpackages: memory, postgres, minio, redis, and sfs
// (an HTTP client for an external Shared File Store). A transform request
// names its source by reference; the reply names the stored target the
// same way.
package storage
