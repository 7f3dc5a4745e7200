package multihash

import "errors"

var (
	// ErrMalformedLocator indicates an encoded locator could not be parsed:
	// bad base58, truncated header, unknown function code, or a declared
	// digest length that disagrees with the remaining bytes.
	ErrMalformedLocator = errors.New("multihash: malformed locator")

	// ErrUnsupportedDigest indicates the digest does not fit the fixed-size
	// 32-byte field of the wire triple.
	ErrUnsupportedDigest = errors.New("multihash: unsupported digest for wire triple")

	// ErrIntegrityMismatch indicates fetched bytes do not hash to the
	// expected locator.
	ErrIntegrityMismatch = errors.New("multihash: content does not match locator")
)
