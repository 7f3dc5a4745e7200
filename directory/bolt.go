package directory

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"go.etcd.io/bbolt"

	"github.com/bitfsorg/libshare-go/identity"
)

var bucketPubKeys = []byte("pubkeys")

// BoltDirectory is a Registrar persisted in bbolt. Keys are stored
// compressed, keyed by identity.
type BoltDirectory struct {
	db      *bbolt.DB
	ownsDB  bool
	mainnet bool
}

var _ Registrar = (*BoltDirectory)(nil)

// OpenBoltDirectory opens or creates the directory database at dbPath.
func OpenBoltDirectory(dbPath string, mainnet bool) (*BoltDirectory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("directory: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("directory: open bolt db: %w", err)
	}
	d, err := NewBoltDirectory(db, mainnet)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	d.ownsDB = true
	return d, nil
}

// NewBoltDirectory uses an already open database. Close does not close db.
func NewBoltDirectory(db *bbolt.DB, mainnet bool) (*BoltDirectory, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPubKeys)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("directory: create bucket: %w", err)
	}
	return &BoltDirectory{db: db, mainnet: mainnet}, nil
}

// Close closes the database if the directory opened it.
func (d *BoltDirectory) Close() error {
	if !d.ownsDB {
		return nil
	}
	return d.db.Close()
}

// Get returns the key registered for id.
func (d *BoltDirectory) Get(ctx context.Context, id identity.Identity) (*ec.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw []byte
	err := d.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPubKeys).Get([]byte(id)); v != nil {
			raw = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("directory: read: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	pub, err := ec.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: stored key for %s: %w", ErrInvalidPublicKey, id, err)
	}
	if err := bind(pub, id, d.mainnet); err != nil {
		return nil, err
	}
	return pub, nil
}

// Register publishes pub under its derived identity.
func (d *BoltDirectory) Register(ctx context.Context, pub *ec.PublicKey) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pub == nil {
		return "", ErrInvalidPublicKey
	}
	id, err := identity.FromPublicKey(pub, d.mainnet)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	compressed := pub.Compressed()

	err = d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPubKeys)
		if existing := b.Get([]byte(id)); existing != nil {
			if !bytes.Equal(existing, compressed) {
				return fmt.Errorf("%w: %s", ErrKeyConflict, id)
			}
			return nil
		}
		return b.Put([]byte(id), compressed)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
