package hybrid

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFInfo is the info string binding derived keys to key wrapping.
const HKDFInfo = "libshare-key-wrap"

// DeriveWrapKey derives the AES-256 key-encryption key from an ECDH shared
// secret. salt is ephemeral pub || recipient pub (compressed), which binds
// the derived key to both parties.
func DeriveWrapKey(sharedSecretX, salt []byte) ([]byte, error) {
	if len(sharedSecretX) == 0 {
		return nil, fmt.Errorf("%w: shared secret is empty", ErrHKDFFailure)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: salt is empty", ErrHKDFFailure)
	}

	r := hkdf.New(sha256.New, sharedSecretX, salt, []byte(HKDFInfo))
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHKDFFailure, err)
	}
	return key, nil
}
