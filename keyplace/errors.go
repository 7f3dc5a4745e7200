package keyplace

import "errors"

var (
	// ErrNotFound indicates no wrapped-key blob is placed for the pair.
	ErrNotFound = errors.New("keyplace: key blob not found")

	// ErrInvalidRecipient indicates an empty recipient identity.
	ErrInvalidRecipient = errors.New("keyplace: invalid recipient")

	// ErrEmptyBlob indicates an attempt to place an empty key blob.
	ErrEmptyBlob = errors.New("keyplace: empty key blob")
)
