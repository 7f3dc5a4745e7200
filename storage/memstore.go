package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitfsorg/libshare-go/multihash"
)

// MemStore is an in-memory BlobStore.
type MemStore struct {
	mu    sync.RWMutex
	code  multihash.Code
	blobs map[string][]byte
}

// NewMemStore creates an empty in-memory store hashing with code.
func NewMemStore(code multihash.Code) *MemStore {
	return &MemStore{code: code, blobs: make(map[string][]byte)}
}

// Put stores a copy of data.
func (s *MemStore) Put(ctx context.Context, data []byte) (multihash.Locator, error) {
	if err := ctx.Err(); err != nil {
		return multihash.Locator{}, err
	}
	loc, err := multihash.Sum(s.code, data)
	if err != nil {
		return multihash.Locator{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[loc.String()] = append([]byte{}, data...)
	return loc, nil
}

// Get returns a copy of the stored data.
func (s *MemStore) Get(ctx context.Context, loc multihash.Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateLocator(loc); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[loc.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return append([]byte{}, data...), nil
}

// Has reports whether loc is stored.
func (s *MemStore) Has(ctx context.Context, loc multihash.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[loc.String()]
	return ok, nil
}

// Delete removes loc.
func (s *MemStore) Delete(ctx context.Context, loc multihash.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := loc.String()
	if _, ok := s.blobs[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
