// Package multihash converts between the self-describing locator strings used
// by the blob store and the fixed-width (digest, hashFunction, size) triple
// recorded on the ledger.
//
// Encoded form:
//
//	base58( code(1B) || length(1B) || digest(length B) )
//
// Only single-byte function codes are supported; every code this package
// knows about is below 0x80, so the varint prefix of a standard multihash
// and the raw byte coincide.
package multihash

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// DigestFieldSize is the width of the digest field of the wire triple.
const DigestFieldSize = 32

// headerLen is the code byte plus the length byte.
const headerLen = 2

// Code identifies a hash function.
type Code uint8

const (
	SHA2_256 Code = 0x12
	SHA2_512 Code = 0x13
	SHA3_256 Code = 0x16
	BLAKE3   Code = 0x1e
)

// digestLengths maps each supported code to its digest length in bytes.
var digestLengths = map[Code]int{
	SHA2_256: 32,
	SHA2_512: 64,
	SHA3_256: 32,
	BLAKE3:   32,
}

var codeNames = map[Code]string{
	SHA2_256: "sha2-256",
	SHA2_512: "sha2-512",
	SHA3_256: "sha3-256",
	BLAKE3:   "blake3",
}

// String returns the canonical multicodec name of the hash function.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(c))
}

// Supported reports whether the code is a known hash function.
func (c Code) Supported() bool {
	_, ok := digestLengths[c]
	return ok
}

// DigestLength returns the digest length for c, or 0 for unknown codes.
func (c Code) DigestLength() int {
	return digestLengths[c]
}

// ParseCode resolves a hash function by its multicodec name.
func ParseCode(name string) (Code, error) {
	for code, n := range codeNames {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown hash function %q", ErrMalformedLocator, name)
}

// Locator is a canonical content-derived address.
type Locator struct {
	Code   Code
	Length uint8
	Digest []byte
}

// Triple is the on-ledger representation of a Locator. Digest holds the
// first Size bytes of the digest; the remainder is zero.
type Triple struct {
	Digest       [DigestFieldSize]byte
	HashFunction uint8
	Size         uint8
}

// IsZero reports whether the triple is unset.
func (t Triple) IsZero() bool {
	return t == Triple{}
}

// Equal reports whether two locators address the same content.
func (l Locator) Equal(other Locator) bool {
	return l.Code == other.Code && l.Length == other.Length && bytes.Equal(l.Digest, other.Digest)
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Code == 0 && l.Length == 0 && len(l.Digest) == 0
}

// validate checks that the code is known and the digest matches its length.
func (l Locator) validate() error {
	want, ok := digestLengths[l.Code]
	if !ok {
		return fmt.Errorf("%w: unknown hash function 0x%02x", ErrMalformedLocator, uint8(l.Code))
	}
	if int(l.Length) != len(l.Digest) {
		return fmt.Errorf("%w: declared length %d, digest has %d bytes", ErrMalformedLocator, l.Length, len(l.Digest))
	}
	if len(l.Digest) != want {
		return fmt.Errorf("%w: %s digest must be %d bytes, got %d", ErrMalformedLocator, l.Code, want, len(l.Digest))
	}
	return nil
}

// Bytes returns code || length || digest.
func (l Locator) Bytes() []byte {
	buf := make([]byte, 0, headerLen+len(l.Digest))
	buf = append(buf, byte(l.Code), l.Length)
	return append(buf, l.Digest...)
}

// String returns the base58 encoded form. Invalid locators encode to "".
func (l Locator) String() string {
	if l.validate() != nil {
		return ""
	}
	return base58.Encode(l.Bytes())
}

// Triple converts the locator to its wire triple.
func (l Locator) Triple() (Triple, error) {
	if err := l.validate(); err != nil {
		return Triple{}, err
	}
	if len(l.Digest) > DigestFieldSize {
		return Triple{}, fmt.Errorf("%w: %s digest is %d bytes", ErrUnsupportedDigest, l.Code, len(l.Digest))
	}
	var t Triple
	copy(t.Digest[:], l.Digest)
	t.HashFunction = uint8(l.Code)
	t.Size = l.Length
	return t, nil
}

// FromTriple converts a wire triple back into a Locator.
func FromTriple(t Triple) (Locator, error) {
	if t.Size > DigestFieldSize {
		return Locator{}, fmt.Errorf("%w: size %d exceeds %d-byte field", ErrUnsupportedDigest, t.Size, DigestFieldSize)
	}
	l := Locator{
		Code:   Code(t.HashFunction),
		Length: t.Size,
		Digest: append([]byte(nil), t.Digest[:t.Size]...),
	}
	if err := l.validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}

// Parse decodes a locator string.
func Parse(s string) (Locator, error) {
	if s == "" {
		return Locator{}, fmt.Errorf("%w: empty string", ErrMalformedLocator)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %w", ErrMalformedLocator, err)
	}
	if len(raw) < headerLen {
		return Locator{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedLocator, len(raw))
	}
	l := Locator{
		Code:   Code(raw[0]),
		Length: raw[1],
		Digest: raw[headerLen:],
	}
	if err := l.validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}

// Encode converts a wire triple into its locator string.
func Encode(t Triple) (string, error) {
	l, err := FromTriple(t)
	if err != nil {
		return "", err
	}
	return base58.Encode(l.Bytes()), nil
}

// Decode converts a locator string into its wire triple.
func Decode(s string) (Triple, error) {
	l, err := Parse(s)
	if err != nil {
		return Triple{}, err
	}
	return l.Triple()
}

// MarshalText implements encoding.TextMarshaler.
func (l Locator) MarshalText() ([]byte, error) {
	if l.IsZero() {
		return []byte{}, nil
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Locator) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*l = Locator{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
