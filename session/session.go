// Package session carries the signed-in identity and its collaborators as
// an explicit value. An account or network change installs a new value
// wholesale; nothing is mutated in place.
package session

import (
	"fmt"
	"sync"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/libshare-go/directory"
	"github.com/bitfsorg/libshare-go/identity"
	"github.com/bitfsorg/libshare-go/ledger"
	"github.com/bitfsorg/libshare-go/storage"
)

// Network names.
const (
	Mainnet = "mainnet"
	Testnet = "testnet"
)

// SessionContext is everything an operation needs on behalf of one
// identity. Treat it as immutable.
type SessionContext struct {
	Identity   identity.Identity
	PrivateKey *ec.PrivateKey
	Network    string

	Ledger    ledger.Ledger
	Store     storage.BlobStore
	Index     storage.PathIndex
	Directory directory.Directory
}

// New builds a SessionContext, deriving the identity from priv.
func New(priv *ec.PrivateKey, network string, l ledger.Ledger, store storage.BlobStore, index storage.PathIndex, dir directory.Directory) (SessionContext, error) {
	if priv == nil {
		return SessionContext{}, fmt.Errorf("%w: nil private key", ErrInvalidSession)
	}
	kp, err := identity.FromPrivateKey(priv, network == Mainnet)
	if err != nil {
		return SessionContext{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	s := SessionContext{
		Identity:   kp.Identity,
		PrivateKey: priv,
		Network:    network,
		Ledger:     l,
		Store:      store,
		Index:      index,
		Directory:  dir,
	}
	if err := s.Validate(); err != nil {
		return SessionContext{}, err
	}
	return s, nil
}

// Mainnet reports whether identities are mainnet addresses.
func (s SessionContext) Mainnet() bool { return s.Network == Mainnet }

// PublicKey returns the session's public key.
func (s SessionContext) PublicKey() *ec.PublicKey { return s.PrivateKey.PubKey() }

// Validate checks that every collaborator is set and the identity matches
// the private key.
func (s SessionContext) Validate() error {
	switch {
	case s.PrivateKey == nil:
		return fmt.Errorf("%w: nil private key", ErrInvalidSession)
	case s.Network != Mainnet && s.Network != Testnet:
		return fmt.Errorf("%w: network %q", ErrInvalidSession, s.Network)
	case s.Ledger == nil:
		return fmt.Errorf("%w: nil ledger", ErrInvalidSession)
	case s.Store == nil:
		return fmt.Errorf("%w: nil blob store", ErrInvalidSession)
	case s.Index == nil:
		return fmt.Errorf("%w: nil path index", ErrInvalidSession)
	case s.Directory == nil:
		return fmt.Errorf("%w: nil directory", ErrInvalidSession)
	}
	id, err := identity.FromPublicKey(s.PrivateKey.PubKey(), s.Mainnet())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if id != s.Identity {
		return fmt.Errorf("%w: identity %s does not match private key", ErrInvalidSession, s.Identity)
	}
	return nil
}

// Manager holds the current session and notifies subscribers when it is
// replaced.
type Manager struct {
	mu      sync.Mutex
	current *SessionContext
	subs    map[int]chan SessionContext
	nextSub int
	closed  bool
}

// NewManager creates a Manager with no session installed.
func NewManager() *Manager {
	return &Manager{subs: make(map[int]chan SessionContext)}
}

// Current returns the installed session.
func (m *Manager) Current() (SessionContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return SessionContext{}, ErrClosed
	}
	if m.current == nil {
		return SessionContext{}, ErrNoSession
	}
	return *m.current, nil
}

// Replace installs s and notifies every subscriber. Slow subscribers only
// ever see the latest session.
func (m *Manager) Replace(s SessionContext) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.current = &s
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
	return nil
}

// Subscribe returns a channel that receives each replaced session and a
// cancel func that unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan SessionContext, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan SessionContext, 1)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

// Close closes every subscription channel.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
