package hybrid

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// WrappedKey is a content key encrypted for one recipient. Its JSON form is
// what gets stored in the blob store.
type WrappedKey struct {
	// EphemeralPubKey is the compressed secp256k1 key of the one-shot sender.
	EphemeralPubKey []byte
	// IV is the AES-GCM nonce used for the key ciphertext.
	IV []byte
	// Ciphertext is AES-256-GCM(kek, exported key JSON) including the tag.
	Ciphertext []byte
}

type wrappedKeyJSON struct {
	IV             string `json:"iv"`
	EphemPublicKey string `json:"ephemPublicKey"`
	Ciphertext     string `json:"ciphertext"`
}

// Marshal serializes the wrapped key for storage.
func (w *WrappedKey) Marshal() ([]byte, error) {
	return json.Marshal(wrappedKeyJSON{
		IV:             hex.EncodeToString(w.IV),
		EphemPublicKey: hex.EncodeToString(w.EphemeralPubKey),
		Ciphertext:     hex.EncodeToString(w.Ciphertext),
	})
}

// UnmarshalWrappedKey parses a stored wrapped key. Any parse failure is
// reported as ErrDecryptionFailure.
func UnmarshalWrappedKey(data []byte) (*WrappedKey, error) {
	var raw wrappedKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	iv, err := hex.DecodeString(raw.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrDecryptionFailure, err)
	}
	eph, err := hex.DecodeString(raw.EphemPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %v", ErrDecryptionFailure, err)
	}
	ct, err := hex.DecodeString(raw.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrDecryptionFailure, err)
	}
	return &WrappedKey{EphemeralPubKey: eph, IV: iv, Ciphertext: ct}, nil
}

// sharedX is the x-coordinate of priv*pub, left-padded to 32 bytes.
func sharedX(priv *ec.PrivateKey, pub *ec.PublicKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}
	if pub == nil {
		return nil, ErrNilPublicKey
	}
	point, err := priv.DeriveSharedSecret(pub)
	if err != nil {
		return nil, fmt.Errorf("hybrid: shared secret: %w", err)
	}
	return point.X.FillBytes(make([]byte, 32)), nil
}

func wrapSalt(ephemeral, recipient *ec.PublicKey) []byte {
	salt := make([]byte, 0, 66)
	salt = append(salt, ephemeral.Compressed()...)
	return append(salt, recipient.Compressed()...)
}

// WrapKey encrypts the exported form of key so that only the holder of the
// private key matching recipient can recover it. Each call uses a fresh
// ephemeral key and nonce, so wrapping the same key twice produces unrelated
// blobs.
func WrapKey(key *ContentKey, recipient *ec.PublicKey) (*WrappedKey, error) {
	if recipient == nil {
		return nil, ErrNilPublicKey
	}
	exported, err := ExportKey(key)
	if err != nil {
		return nil, err
	}

	ephemeral, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %w", ErrRandomSource, err)
	}

	shared, err := sharedX(ephemeral, recipient)
	if err != nil {
		return nil, err
	}
	kek, err := DeriveWrapKey(shared, wrapSalt(ephemeral.PubKey(), recipient))
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, NonceLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrRandomSource, err)
	}

	return &WrappedKey{
		EphemeralPubKey: ephemeral.PubKey().Compressed(),
		IV:              iv,
		Ciphertext:      gcm.Seal(nil, iv, exported, nil),
	}, nil
}

// UnwrapKey recovers a content key with the recipient's private key. The
// private key is only used for the duration of the call.
func UnwrapKey(w *WrappedKey, privateKey *ec.PrivateKey) (*ContentKey, error) {
	if privateKey == nil {
		return nil, ErrNilPrivateKey
	}
	if w == nil || len(w.IV) != NonceLen || len(w.Ciphertext) < GCMTagLen {
		return nil, ErrDecryptionFailure
	}

	ephemeral, err := ec.PublicKeyFromBytes(w.EphemeralPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %v", ErrDecryptionFailure, err)
	}

	shared, err := sharedX(privateKey, ephemeral)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	kek, err := DeriveWrapKey(shared, wrapSalt(ephemeral, privateKey.PubKey()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}

	gcm, err := newGCM(kek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	exported, err := gcm.Open(nil, w.IV, w.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailure
	}

	key, err := ImportKey(exported)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return key, nil
}

// WrapKeyBlob wraps key and returns the serialized blob.
func WrapKeyBlob(key *ContentKey, recipient *ec.PublicKey) ([]byte, error) {
	w, err := WrapKey(key, recipient)
	if err != nil {
		return nil, err
	}
	return w.Marshal()
}

// UnwrapKeyBlob parses a serialized blob and unwraps it.
func UnwrapKeyBlob(blob []byte, privateKey *ec.PrivateKey) (*ContentKey, error) {
	if privateKey == nil {
		return nil, ErrNilPrivateKey
	}
	w, err := UnmarshalWrappedKey(blob)
	if err != nil {
		return nil, err
	}
	return UnwrapKey(w, privateKey)
}

// RewrapKeyBlob unwraps an owner's blob and wraps the recovered key for a
// new recipient. The plaintext key is zeroed before returning.
func RewrapKeyBlob(blob []byte, ownerKey *ec.PrivateKey, recipient *ec.PublicKey) ([]byte, error) {
	if recipient == nil {
		return nil, ErrNilPublicKey
	}
	key, err := UnwrapKeyBlob(blob, ownerKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return WrapKeyBlob(key, recipient)
}
