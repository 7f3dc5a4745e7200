// Package identity defines the public identity used on the ledger and in the
// key directory: the P2PKH address of a secp256k1 public key.
package identity

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
)

// Identity is an owner's or recipient's public address.
type Identity string

// String returns the address.
func (id Identity) String() string { return string(id) }

// Parse validates an address string.
func Parse(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if _, err := script.NewAddressFromString(s); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidIdentity, s, err)
	}
	return Identity(s), nil
}

// FromPublicKey derives the identity of a public key. mainnet selects the
// address version byte.
func FromPublicKey(pub *ec.PublicKey, mainnet bool) (Identity, error) {
	if pub == nil {
		return "", ErrNilKey
	}
	addr, err := script.NewAddressFromPublicKey(pub, mainnet)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return Identity(addr.AddressString), nil
}

// Keypair is a secp256k1 key pair together with its identity.
type Keypair struct {
	PrivateKey *ec.PrivateKey
	PublicKey  *ec.PublicKey
	Identity   Identity
}

// Generate creates a fresh keypair.
func Generate(mainnet bool) (*Keypair, error) {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return FromPrivateKey(priv, mainnet)
}

// FromPrivateKey builds a keypair around an existing private key.
func FromPrivateKey(priv *ec.PrivateKey, mainnet bool) (*Keypair, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	pub := priv.PubKey()
	id, err := FromPublicKey(pub, mainnet)
	if err != nil {
		return nil, err
	}
	return &Keypair{PrivateKey: priv, PublicKey: pub, Identity: id}, nil
}

// PublicKeyHex returns the compressed public key as hex.
func PublicKeyHex(pub *ec.PublicKey) string {
	return hex.EncodeToString(pub.Compressed())
}

// ParsePublicKeyHex parses a hex-encoded compressed or uncompressed public key.
func ParsePublicKeyHex(s string) (*ec.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	pub, err := ec.PublicKeyFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// PrivateKeyHex returns the 32-byte scalar as hex.
func PrivateKeyHex(priv *ec.PrivateKey) string {
	return hex.EncodeToString(priv.Serialize())
}

// ParsePrivateKeyHex parses a hex-encoded 32-byte scalar.
func ParsePrivateKeyHex(s string) (*ec.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: must be 32 bytes, got %d", ErrInvalidPrivateKey, len(b))
	}
	priv, _ := ec.PrivateKeyFromBytes(b)
	if priv == nil || priv.D.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidPrivateKey)
	}
	return priv, nil
}

// LoadKeyFile reads a hex private key from path.
func LoadKeyFile(path string) (*ec.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}
	return ParsePrivateKeyHex(string(data))
}

// SaveKeyFile writes priv as hex to path with owner-only permissions.
func SaveKeyFile(path string, priv *ec.PrivateKey) error {
	if priv == nil {
		return ErrNilKey
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("identity: create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(PrivateKeyHex(priv)+"\n"), 0600); err != nil {
		return fmt.Errorf("identity: write key file: %w", err)
	}
	return nil
}
