package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when no file exists for a reference, or it
	// belongs to another tenant.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidReference is returned for references that could not have
	// been issued by a store.
	ErrInvalidReference = errors.New("Shared File Store reference is invalid.")

	// ErrInsufficientStorage is returned when a save would exceed the
	// store's capacity.
	ErrInsufficientStorage = errors.New("insufficient storage")
)
