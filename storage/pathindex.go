package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libshare-go/multihash"
)

var bucketPaths = []byte("paths")

// MemPathIndex is an in-memory PathIndex.
type MemPathIndex struct {
	mu    sync.RWMutex
	paths map[string]multihash.Locator
}

// NewMemPathIndex creates an empty in-memory path index.
func NewMemPathIndex() *MemPathIndex {
	return &MemPathIndex{paths: make(map[string]multihash.Locator)}
}

// Link binds path to loc.
func (p *MemPathIndex) Link(ctx context.Context, path string, loc multihash.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateLocator(loc); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths[path] = loc
	return nil
}

// Resolve returns the locator bound to path.
func (p *MemPathIndex) Resolve(ctx context.Context, path string) (multihash.Locator, error) {
	if err := ctx.Err(); err != nil {
		return multihash.Locator{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	loc, ok := p.paths[path]
	if !ok {
		return multihash.Locator{}, fmt.Errorf("%w: path %s", ErrNotFound, path)
	}
	return loc, nil
}

// Unlink removes the binding for path.
func (p *MemPathIndex) Unlink(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.paths[path]; !ok {
		return fmt.Errorf("%w: path %s", ErrNotFound, path)
	}
	delete(p.paths, path)
	return nil
}

// List returns the bound paths under prefix.
func (p *MemPathIndex) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for path := range p.paths {
		if strings.HasPrefix(path, prefix) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

// BoltPathIndex persists path bindings in a bbolt bucket.
type BoltPathIndex struct {
	db    *bbolt.DB
	owned bool
}

// Compile-time interface checks.
var (
	_ PathIndex = (*MemPathIndex)(nil)
	_ PathIndex = (*BoltPathIndex)(nil)
	_ BlobStore = (*FileStore)(nil)
	_ BlobStore = (*MemStore)(nil)
)

// OpenBoltPathIndex opens or creates a dedicated bbolt database at dbPath.
func OpenBoltPathIndex(dbPath string) (*BoltPathIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open bolt db: %w", err)
	}
	idx, err := NewBoltPathIndex(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	idx.owned = true
	return idx, nil
}

// NewBoltPathIndex uses an already open database, creating the bucket if
// needed. Close does not close a shared database.
func NewBoltPathIndex(db *bbolt.DB) (*BoltPathIndex, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPaths)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create bucket %q: %w", bucketPaths, err)
	}
	return &BoltPathIndex{db: db}, nil
}

// Close closes the database if this index opened it.
func (p *BoltPathIndex) Close() error {
	if p.owned {
		return p.db.Close()
	}
	return nil
}

// Link binds path to loc.
func (p *BoltPathIndex) Link(ctx context.Context, path string, loc multihash.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateLocator(loc); err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPaths).Put([]byte(path), []byte(loc.String()))
	})
}

// Resolve returns the locator bound to path.
func (p *BoltPathIndex) Resolve(ctx context.Context, path string) (multihash.Locator, error) {
	if err := ctx.Err(); err != nil {
		return multihash.Locator{}, err
	}
	var loc multihash.Locator
	err := p.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketPaths).Get([]byte(path))
		if v == nil {
			return fmt.Errorf("%w: path %s", ErrNotFound, path)
		}
		parsed, err := multihash.Parse(string(v))
		if err != nil {
			return fmt.Errorf("%w: stored binding for %s: %w", ErrInvalidLocator, path, err)
		}
		loc = parsed
		return nil
	})
	return loc, err
}

// Unlink removes the binding for path.
func (p *BoltPathIndex) Unlink(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPaths)
		if b.Get([]byte(path)) == nil {
			return fmt.Errorf("%w: path %s", ErrNotFound, path)
		}
		return b.Delete([]byte(path))
	})
}

// List returns the bound paths under prefix in key order.
func (p *BoltPathIndex) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := p.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketPaths).Cursor()
		pfx := []byte(prefix)
		for k, _ := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}
