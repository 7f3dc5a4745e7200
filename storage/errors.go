package storage

import "errors"

var (
	// ErrNotFound indicates no content exists for the given locator or path.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidLocator indicates a locator is malformed or unsupported by the store.
	ErrInvalidLocator = errors.New("storage: invalid locator")

	// ErrInvalidPath indicates an empty or malformed placement path.
	ErrInvalidPath = errors.New("storage: invalid path")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrUnsupportedHash indicates the store was configured with an unknown hash function.
	ErrUnsupportedHash = errors.New("storage: unsupported hash function")
)
