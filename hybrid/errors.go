package hybrid

import "errors"

var (
	// ErrNilPrivateKey indicates a nil private key was provided.
	ErrNilPrivateKey = errors.New("hybrid: private key is nil")

	// ErrNilPublicKey indicates a nil public key was provided.
	ErrNilPublicKey = errors.New("hybrid: public key is nil")

	// ErrInvalidKey indicates content key material of the wrong size or form.
	ErrInvalidKey = errors.New("hybrid: invalid content key")

	// ErrAuthenticationFailure indicates AES-GCM authentication failed while
	// decrypting content: the ciphertext, nonce or key is wrong.
	// Nothing is returned alongside it.
	ErrAuthenticationFailure = errors.New("hybrid: content authentication failed")

	// ErrDecryptionFailure indicates a wrapped key could not be recovered.
	ErrDecryptionFailure = errors.New("hybrid: invalid key or corrupted blob")

	// ErrMalformedPayload indicates a stored ciphertext||nonce payload is too
	// short to contain a nonce and a tag.
	ErrMalformedPayload = errors.New("hybrid: malformed encrypted payload")

	// ErrHKDFFailure indicates HKDF key derivation failed.
	ErrHKDFFailure = errors.New("hybrid: HKDF key derivation failed")

	// ErrRandomSource indicates the system random source failed.
	ErrRandomSource = errors.New("hybrid: random source failure")
)
