package multihash

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Sum computes the locator of data under the given hash function.
func Sum(code Code, data []byte) (Locator, error) {
	var digest []byte
	switch code {
	case SHA2_256:
		d := sha256.Sum256(data)
		digest = d[:]
	case SHA2_512:
		d := sha512.Sum512(data)
		digest = d[:]
	case SHA3_256:
		d := sha3.Sum256(data)
		digest = d[:]
	case BLAKE3:
		d := blake3.Sum256(data)
		digest = d[:]
	default:
		return Locator{}, fmt.Errorf("%w: unknown hash function 0x%02x", ErrMalformedLocator, uint8(code))
	}
	return Locator{Code: code, Length: uint8(len(digest)), Digest: digest}, nil
}

// Verify checks that data hashes to loc.
func Verify(loc Locator, data []byte) error {
	actual, err := Sum(loc.Code, data)
	if err != nil {
		return err
	}
	if !actual.Equal(loc) {
		return fmt.Errorf("%w: expected %s, got %s", ErrIntegrityMismatch, loc, actual)
	}
	return nil
}
