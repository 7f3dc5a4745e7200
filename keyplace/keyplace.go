// Package keyplace places wrapped-key blobs in the blob store so that the
// holder of a file locator and their own identity can find their key without
// any other index.
package keyplace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/multihash"
	"github.com/bitfsorg/libshare-go/storage"
)

// PlacementPath returns the deterministic path for recipient's key blob
// under fileLoc's namespace.
func PlacementPath(fileLoc multihash.Locator, recipient identity.Identity) string {
	return fileLoc.String() + "/" + recipient.String()
}

// Placer stores and resolves wrapped-key blobs.
type Placer struct {
	Blobs storage.BlobStore
	Index storage.PathIndex
}

// New creates a Placer over store and index.
func New(store storage.BlobStore, index storage.PathIndex) *Placer {
	return &Placer{Blobs: store, Index: index}
}

// Put stores blob without binding any path to it. Until Link runs the blob
// is unreferenced and Fetch cannot find it.
func (p *Placer) Put(ctx context.Context, blob []byte) (multihash.Locator, error) {
	if len(blob) == 0 {
		return multihash.Locator{}, ErrEmptyBlob
	}
	loc, err := p.Blobs.Put(ctx, blob)
	if err != nil {
		return multihash.Locator{}, fmt.Errorf("keyplace: put: %w", err)
	}
	return loc, nil
}

// Link binds PlacementPath(fileLoc, recipient) to an already stored blob.
func (p *Placer) Link(ctx context.Context, fileLoc multihash.Locator, recipient identity.Identity, loc multihash.Locator) error {
	if recipient == "" {
		return ErrInvalidRecipient
	}
	path := PlacementPath(fileLoc, recipient)
	if err := p.Index.Link(ctx, path, loc); err != nil {
		return fmt.Errorf("keyplace: link %s: %w", path, err)
	}
	return nil
}

// Store puts blob in the blob store and binds path to its content address.
// The returned locator is the blob's hash, not path.
func (p *Placer) Store(ctx context.Context, path string, blob []byte) (multihash.Locator, error) {
	loc, err := p.Put(ctx, blob)
	if err != nil {
		return multihash.Locator{}, err
	}
	if err := p.Index.Link(ctx, path, loc); err != nil {
		return multihash.Locator{}, fmt.Errorf("keyplace: link %s: %w", path, err)
	}
	return loc, nil
}

// Place stores blob at PlacementPath(fileLoc, recipient).
func (p *Placer) Place(ctx context.Context, fileLoc multihash.Locator, recipient identity.Identity, blob []byte) (multihash.Locator, error) {
	if recipient == "" {
		return multihash.Locator{}, ErrInvalidRecipient
	}
	return p.Store(ctx, PlacementPath(fileLoc, recipient), blob)
}

// Resolve returns the locator bound at recipient's placement path.
func (p *Placer) Resolve(ctx context.Context, fileLoc multihash.Locator, recipient identity.Identity) (multihash.Locator, error) {
	if recipient == "" {
		return multihash.Locator{}, ErrInvalidRecipient
	}
	path := PlacementPath(fileLoc, recipient)
	loc, err := p.Index.Resolve(ctx, path)
	if err != nil {
		return multihash.Locator{}, notFound(err, path)
	}
	return loc, nil
}

// Placements lists the identities holding a placement under fileLoc.
func (p *Placer) Placements(ctx context.Context, fileLoc multihash.Locator) ([]identity.Identity, error) {
	prefix := fileLoc.String() + "/"
	paths, err := p.Index.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("keyplace: list %s: %w", prefix, err)
	}
	out := make([]identity.Identity, 0, len(paths))
	for _, path := range paths {
		out = append(out, identity.Identity(strings.TrimPrefix(path, prefix)))
	}
	return out, nil
}

// Fetch resolves and retrieves recipient's key blob for fileLoc. The path
// binding is read on every call, so a revoked blob is never served.
func (p *Placer) Fetch(ctx context.Context, fileLoc multihash.Locator, recipient identity.Identity) ([]byte, error) {
	loc, err := p.Resolve(ctx, fileLoc, recipient)
	if err != nil {
		return nil, err
	}
	return p.FetchAt(ctx, loc)
}

// FetchAt retrieves a key blob by its content address, as listed on the
// ledger.
func (p *Placer) FetchAt(ctx context.Context, loc multihash.Locator) ([]byte, error) {
	data, err := p.Blobs.Get(ctx, loc)
	if err != nil {
		return nil, notFound(err, loc.String())
	}
	return data, nil
}

// Revoke removes recipient's path binding and drops the blob from the
// store. Revoking an absent placement returns ErrNotFound.
func (p *Placer) Revoke(ctx context.Context, fileLoc multihash.Locator, recipient identity.Identity) error {
	if recipient == "" {
		return ErrInvalidRecipient
	}
	path := PlacementPath(fileLoc, recipient)
	loc, err := p.Index.Resolve(ctx, path)
	if err != nil {
		return notFound(err, path)
	}
	if err := p.Index.Unlink(ctx, path); err != nil {
		return notFound(err, path)
	}
	return p.Drop(ctx, loc)
}

// Drop deletes a key blob from the store. An absent blob is not an error.
func (p *Placer) Drop(ctx context.Context, loc multihash.Locator) error {
	if err := p.Blobs.Delete(ctx, loc); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("keyplace: delete %s: %w", loc, err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, what, err)
	}
	return fmt.Errorf("keyplace: %s: %w", what, err)
}
