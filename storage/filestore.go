package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bitfsorg/libshare-go/multihash"
)

// FileStore implements BlobStore on the local filesystem.
// Blobs are stored at {baseDir}/{hex(digest[:1])}/{locator}; the first digest
// byte shards the directory.
type FileStore struct {
	baseDir string
	code    multihash.Code
	mu      sync.RWMutex
}

// NewFileStore creates a file-based content store hashing with code.
// The directory is created if it does not exist.
func NewFileStore(baseDir string, code multihash.Code) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if !code.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, code)
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{baseDir: baseDir, code: code}, nil
}

// LocatorToPath converts a locator to its filesystem path.
func LocatorToPath(baseDir string, loc multihash.Locator) string {
	shard := hex.EncodeToString(loc.Digest[:1])
	return filepath.Join(baseDir, shard, loc.String())
}

func validateLocator(loc multihash.Locator) error {
	if loc.String() == "" {
		return fmt.Errorf("%w: %s digest of %d bytes", ErrInvalidLocator, loc.Code, len(loc.Digest))
	}
	return nil
}

// Put stores data under its content address. Storing identical bytes twice
// is a no-op returning the same locator.
func (fs *FileStore) Put(ctx context.Context, data []byte) (multihash.Locator, error) {
	if err := ctx.Err(); err != nil {
		return multihash.Locator{}, err
	}
	loc, err := multihash.Sum(fs.code, data)
	if err != nil {
		return multihash.Locator{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := LocatorToPath(fs.baseDir, loc)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return multihash.Locator{}, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	// Write to a temp file first so readers never see a partial blob.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return multihash.Locator{}, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return multihash.Locator{}, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return loc, nil
}

// Get retrieves content by locator.
func (fs *FileStore) Get(ctx context.Context, loc multihash.Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateLocator(loc); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(LocatorToPath(fs.baseDir, loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return data, nil
}

// Has checks if content exists for the given locator.
func (fs *FileStore) Has(ctx context.Context, loc multihash.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateLocator(loc); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(LocatorToPath(fs.baseDir, loc))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Delete removes content by locator.
func (fs *FileStore) Delete(ctx context.Context, loc multihash.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateLocator(loc); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(LocatorToPath(fs.baseDir, loc)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, loc)
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// List returns all stored locators by scanning the shard directories.
func (fs *FileStore) List() ([]multihash.Locator, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var result []multihash.Locator
	for _, entry := range entries {
		// Shard directories are 2-character hex strings
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			loc, err := multihash.Parse(f.Name())
			if err != nil {
				continue // skip temp files and foreign names
			}
			result = append(result, loc)
		}
	}
	return result, nil
}
