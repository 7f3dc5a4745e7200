// Package storage provides the content-addressed blob store used for
// encrypted payloads and wrapped-key blobs, and the path index that maps
// human-readable placement paths onto content locators.
package storage

import (
	"context"

	"github.com/bitfsorg/libshare-go/multihash"
)

// BlobStore is an immutable content-addressed store. Identical bytes always
// map to the identical locator.
type BlobStore interface {
	// Put stores data and returns its content address.
	Put(ctx context.Context, data []byte) (multihash.Locator, error)

	// Get retrieves data by content address. Returns ErrNotFound if absent.
	Get(ctx context.Context, loc multihash.Locator) ([]byte, error)

	// Has reports whether content exists for loc.
	Has(ctx context.Context, loc multihash.Locator) (bool, error)

	// Delete removes content by locator.
	Delete(ctx context.Context, loc multihash.Locator) error
}

// PathIndex is the directory layer of the blob store: it binds placement
// paths to content locators. Bindings are the only mutable state; the blobs
// they point at never change.
type PathIndex interface {
	// Link binds path to loc, replacing any previous binding.
	Link(ctx context.Context, path string, loc multihash.Locator) error

	// Resolve returns the locator bound to path, or ErrNotFound.
	Resolve(ctx context.Context, path string) (multihash.Locator, error)

	// Unlink removes the binding for path. Returns ErrNotFound if unbound.
	Unlink(ctx context.Context, path string) error

	// List returns all paths with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

func validatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	return nil
}
