package directory

import "errors"

var (
	// ErrNotFound indicates the identity has no registered public key.
	// Recipients must register before they can be shared to.
	ErrNotFound = errors.New("directory: identity not registered")

	// ErrKeyConflict indicates a different key is already registered for
	// the identity.
	ErrKeyConflict = errors.New("directory: identity already bound to another key")

	// ErrInvalidPublicKey indicates a malformed or mismatched public key.
	ErrInvalidPublicKey = errors.New("directory: invalid public key")

	// ErrLookupFailed indicates a DNS lookup failed.
	ErrLookupFailed = errors.New("directory: lookup failed")

	// ErrDNSSECValidationFailed indicates the upstream resolver did not set
	// the AD flag.
	ErrDNSSECValidationFailed = errors.New("directory: DNSSEC validation failed")

	// ErrReadOnly indicates no member of a chain accepts registrations.
	ErrReadOnly = errors.New("directory: no writable directory")
)
