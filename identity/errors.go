package identity

import "errors"

var (
	// ErrInvalidIdentity indicates a string is not a valid address.
	ErrInvalidIdentity = errors.New("identity: invalid identity")

	// ErrInvalidPublicKey indicates public key bytes could not be parsed.
	ErrInvalidPublicKey = errors.New("identity: invalid public key")

	// ErrInvalidPrivateKey indicates private key bytes could not be parsed.
	ErrInvalidPrivateKey = errors.New("identity: invalid private key")

	// ErrNilKey indicates a nil key was provided.
	ErrNilKey = errors.New("identity: key is nil")
)
