package hybrid

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

const (
	// NonceLen is the length of the AES-GCM nonce in bytes.
	NonceLen = 12

	// GCMTagLen is the length of the GCM authentication tag in bytes.
	GCMTagLen = 16

	// MinPayloadLen is the smallest valid ciphertext||nonce payload.
	MinPayloadLen = GCMTagLen + NonceLen
)

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: AES cipher creation failed: %v", ErrInvalidKey, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: GCM creation failed: %v", ErrInvalidKey, err)
	}
	return gcm, nil
}

// EncryptContent encrypts plaintext under key with AES-256-GCM.
// The nonce is generated here for every call and returned alongside the
// ciphertext; callers cannot supply one. len(ciphertext) == len(plaintext)+16.
func EncryptContent(plaintext []byte, key *ContentKey) (ciphertext, nonce []byte, err error) {
	if err := key.valid(); err != nil {
		return nil, nil, err
	}
	gcm, err := newGCM(key.raw)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: nonce: %w", ErrRandomSource, err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptContent authenticates and decrypts ciphertext. Any tampering with
// the ciphertext or nonce, or a wrong key, yields ErrAuthenticationFailure
// and no plaintext.
func DecryptContent(ciphertext []byte, key *ContentKey, nonce []byte) ([]byte, error) {
	if err := key.valid(); err != nil {
		return nil, err
	}
	if len(nonce) != NonceLen {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrAuthenticationFailure, NonceLen, len(nonce))
	}
	if len(ciphertext) < GCMTagLen {
		return nil, fmt.Errorf("%w: ciphertext shorter than tag", ErrAuthenticationFailure)
	}

	gcm, err := newGCM(key.raw)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}

	// Normalize nil to empty slice for consistency.
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// SealPayload encrypts plaintext and returns the stored form ciphertext || nonce.
func SealPayload(plaintext []byte, key *ContentKey) ([]byte, error) {
	ciphertext, nonce, err := EncryptContent(plaintext, key)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(ciphertext)+NonceLen)
	payload = append(payload, ciphertext...)
	return append(payload, nonce...), nil
}

// SplitPayload separates a stored payload into ciphertext and nonce.
func SplitPayload(payload []byte) (ciphertext, nonce []byte, err error) {
	if len(payload) < MinPayloadLen {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(payload))
	}
	split := len(payload) - NonceLen
	return payload[:split], payload[split:], nil
}

// OpenPayload decrypts a ciphertext || nonce payload.
func OpenPayload(payload []byte, key *ContentKey) ([]byte, error) {
	ciphertext, nonce, err := SplitPayload(payload)
	if err != nil {
		return nil, err
	}
	return DecryptContent(ciphertext, key, nonce)
}
