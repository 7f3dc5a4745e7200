// Package directory maps identities to their secp256k1 public keys.
//
// A key is published once, at first login, and is what other users wrap
// content keys for. Every implementation checks that a returned key
// actually derives the requested identity.
package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libshare-go/identity"
)

// Directory looks up public keys.
type Directory interface {
	// Get returns the key registered for id, or ErrNotFound.
	Get(ctx context.Context, id identity.Identity) (*ec.PublicKey, error)
}

// Registrar is a Directory that accepts registrations.
type Registrar interface {
	Directory

	// Register publishes pub under its derived identity. Registering the
	// same key again is a no-op.
	Register(ctx context.Context, pub *ec.PublicKey) (identity.Identity, error)
}

// bind checks that pub derives id on the given network.
func bind(pub *ec.PublicKey, id identity.Identity, mainnet bool) error {
	derived, err := identity.FromPublicKey(pub, mainnet)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	if derived != id {
		return fmt.Errorf("%w: key derives %s, not %s", ErrInvalidPublicKey, derived, id)
	}
	return nil
}

// MemDirectory is an in-memory Registrar.
type MemDirectory struct {
	mainnet bool

	mu   sync.RWMutex
	keys map[identity.Identity]*ec.PublicKey
}

var (
	_ Registrar = (*MemDirectory)(nil)
	_ Registrar = Chain(nil)
)

// NewMemDirectory creates an empty directory for the given network.
func NewMemDirectory(mainnet bool) *MemDirectory {
	return &MemDirectory{mainnet: mainnet, keys: make(map[identity.Identity]*ec.PublicKey)}
}

// Get returns the key registered for id.
func (d *MemDirectory) Get(ctx context.Context, id identity.Identity) (*ec.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	pub, ok := d.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return pub, nil
}

// Register publishes pub.
func (d *MemDirectory) Register(ctx context.Context, pub *ec.PublicKey) (identity.Identity, error) {
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

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.keys[id]; ok {
		if !bytes.Equal(existing.Compressed(), pub.Compressed()) {
			return "", fmt.Errorf("%w: %s", ErrKeyConflict, id)
		}
		return id, nil
	}
	d.keys[id] = pub
	return id, nil
}

// Chain queries directories in order and returns the first key found.
type Chain []Directory

// Get returns the first registered key for id.
func (c Chain) Get(ctx context.Context, id identity.Identity) (*ec.PublicKey, error) {
	for _, d := range c {
		pub, err := d.Get(ctx, id)
		if err == nil {
			return pub, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Register publishes pub with the first member that accepts registrations.
func (c Chain) Register(ctx context.Context, pub *ec.PublicKey) (identity.Identity, error) {
	for _, d := range c {
		if reg, ok := d.(Registrar); ok {
			return reg.Register(ctx, pub)
		}
	}
	return "", ErrReadOnly
}
