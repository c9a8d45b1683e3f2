// Package envelope implements the session-scoped envelope codec: the
// opaque handle standing in for a homomorphic ciphertext in the FHE16
// simulation. A codec owns exactly one symmetric key; rounds that must
// not share plaintext own independent codecs.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fhe16/confidential-compute-backend/cryptoutils"
	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// Codec seals and opens envelopes under a single session key. It
// implements interfaces.EnvelopeCodec. The zero value has no key and
// fails every operation with ErrEncryptionUnavailable.
type Codec struct {
	key []byte
}

// NewCodec creates a codec for a 32-byte session key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != cryptoutils.EnvelopeKeySize {
		return nil, fmt.Errorf("session key must be %d bytes", cryptoutils.EnvelopeKeySize)
	}
	c := &Codec{key: make([]byte, len(key))}
	copy(c.key, key)
	return c, nil
}

// Seal encrypts plaintext into an opaque envelope token. A fresh nonce
// is drawn on every call, so equal plaintexts never produce equal
// tokens.
func (c *Codec) Seal(plaintext []byte) (interfaces.Envelope, error) {
	if c == nil || len(c.key) == 0 {
		return "", interfaces.ErrEncryptionUnavailable
	}

	sealed, err := cryptoutils.EncryptWithKey(c.key, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to seal envelope: %w", err)
	}

	return interfaces.Envelope(base64.RawURLEncoding.EncodeToString(sealed)), nil
}

// Open reverses Seal. A fingerprint mismatch maps to ErrKeyMismatch, any
// other authentication failure to ErrInvalidCiphertext.
func (c *Codec) Open(env interfaces.Envelope) ([]byte, error) {
	if c == nil || len(c.key) == 0 {
		return nil, interfaces.ErrEncryptionUnavailable
	}

	raw, err := base64.RawURLEncoding.DecodeString(string(env))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid envelope token", interfaces.ErrInvalidCiphertext)
	}

	plaintext, err := cryptoutils.DecryptWithKey(c.key, raw)
	if err != nil {
		if errors.Is(err, cryptoutils.ErrEnvelopeKeyMismatch) {
			return nil, interfaces.ErrKeyMismatch
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidCiphertext, err)
	}

	return plaintext, nil
}

// KeyFingerprint returns the public fingerprint carried on every
// envelope this codec seals.
func (c *Codec) KeyFingerprint() [cryptoutils.KeyFingerprintSize]byte {
	return cryptoutils.KeyFingerprint(c.key)
}
