// Package hybrid implements per-file content encryption and per-recipient key
// wrapping.
//
// Every file gets a fresh random AES-256 key. Content is sealed with
// AES-256-GCM under a nonce generated inside EncryptContent. The content key is
// exported as a JSON web key and wrapped for each recipient with ECIES over
// secp256k1:
//
//	eph      = random secp256k1 key
//	shared   = ECDH(eph, P_recipient).x
//	kek      = HKDF-SHA256(shared, eph.pub || P_recipient, "libshare-key-wrap")
//	wrapped  = AES-256-GCM(kek, exported key JSON)
package hybrid

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// KeyLen is the length of a content key in bytes (AES-256).
const KeyLen = 32

// ContentKey is the symmetric key protecting one file.
type ContentKey struct {
	raw []byte
}

// GenerateContentKey returns a fresh uniformly random content key.
func GenerateContentKey() (*ContentKey, error) {
	raw := make([]byte, KeyLen)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRandomSource, err)
	}
	return &ContentKey{raw: raw}, nil
}

// ContentKeyFromBytes wraps raw key bytes. The slice is copied.
func ContentKeyFromBytes(raw []byte) (*ContentKey, error) {
	if len(raw) != KeyLen {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidKey, KeyLen, len(raw))
	}
	return &ContentKey{raw: append([]byte(nil), raw...)}, nil
}

// Bytes returns a copy of the raw key.
func (k *ContentKey) Bytes() []byte {
	return append([]byte(nil), k.raw...)
}

// Equal compares two keys in constant time.
func (k *ContentKey) Equal(other *ContentKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.raw, other.raw) == 1
}

// Zero overwrites the key material.
func (k *ContentKey) Zero() {
	if k == nil {
		return
	}
	for i := range k.raw {
		k.raw[i] = 0
	}
}

func (k *ContentKey) valid() error {
	if k == nil || len(k.raw) != KeyLen {
		return ErrInvalidKey
	}
	return nil
}

// ExportedKey is the interoperable JSON web key form of a ContentKey.
type ExportedKey struct {
	Kty    string   `json:"kty"`
	Alg    string   `json:"alg"`
	K      string   `json:"k"`
	Ext    bool     `json:"ext"`
	KeyOps []string `json:"key_ops"`
}

const (
	jwkKty = "oct"
	jwkAlg = "A256GCM"
)

// ExportKey serializes the key as JSON web key bytes.
func ExportKey(k *ContentKey) ([]byte, error) {
	if err := k.valid(); err != nil {
		return nil, err
	}
	return json.Marshal(ExportedKey{
		Kty:    jwkKty,
		Alg:    jwkAlg,
		K:      base64.RawURLEncoding.EncodeToString(k.raw),
		Ext:    true,
		KeyOps: []string{"encrypt", "decrypt"},
	})
}

// ImportKey parses JSON web key bytes produced by ExportKey.
func ImportKey(data []byte) (*ContentKey, error) {
	var jwk ExportedKey
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if jwk.Kty != jwkKty || jwk.Alg != jwkAlg {
		return nil, fmt.Errorf("%w: unexpected key type %q/%q", ErrInvalidKey, jwk.Kty, jwk.Alg)
	}
	raw, err := base64.RawURLEncoding.DecodeString(jwk.K)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return ContentKeyFromBytes(raw)
}
