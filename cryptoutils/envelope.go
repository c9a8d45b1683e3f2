// Package cryptoutils implements the cryptographic primitives of the
// FHE16 simulation: symmetric envelope encryption, value commitments and
// the audit signature stub. None of it is homomorphic; the envelope is a
// stand-in ciphertext opened and resealed by the dispatcher.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// EnvelopeKeySize is the AES-256 key size.
	EnvelopeKeySize = 32
	// EnvelopeNonceSize is the nonce size for AES-GCM.
	EnvelopeNonceSize = 12
	// KeyFingerprintSize is the public key-fingerprint prefix length.
	KeyFingerprintSize = 4
)

// KeyFingerprint derives a short public fingerprint of a session key.
// It is carried in the clear at the front of every envelope so that
// opening under the wrong session key is distinguishable from tampering.
// Four bytes of a SHA-256 reveal nothing useful about the key itself.
func KeyFingerprint(key []byte) [KeyFingerprintSize]byte {
	sum := sha256.Sum256(key)
	var fp [KeyFingerprintSize]byte
	copy(fp[:], sum[:KeyFingerprintSize])
	return fp
}

// EncryptWithKey encrypts data under a 32-byte session key with AES-GCM.
//
// Format: [key fingerprint (4 bytes)][nonce (12 bytes)][ciphertext]
//
// A fresh random nonce is generated on every call, so encrypting the
// same plaintext twice never produces the same output.
func EncryptWithKey(key, data []byte) ([]byte, error) {
	if len(key) != EnvelopeKeySize {
		return nil, errors.New("session key must be 32 bytes for AES-256")
	}

	nonce := make([]byte, EnvelopeNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	fp := KeyFingerprint(key)
	ciphertext := aesGCM.Seal(nil, nonce, data, fp[:])

	result := make([]byte, KeyFingerprintSize+EnvelopeNonceSize+len(ciphertext))
	copy(result[:KeyFingerprintSize], fp[:])
	copy(result[KeyFingerprintSize:KeyFingerprintSize+EnvelopeNonceSize], nonce)
	copy(result[KeyFingerprintSize+EnvelopeNonceSize:], ciphertext)

	return result, nil
}

// ErrEnvelopeKeyMismatch indicates the envelope was produced under a
// different session key than the one provided.
var ErrEnvelopeKeyMismatch = errors.New("envelope key fingerprint mismatch")

// ErrEnvelopeTampered indicates GCM authentication failed for an
// envelope whose key fingerprint matched.
var ErrEnvelopeTampered = errors.New("envelope authentication failed")

// DecryptWithKey reverses EncryptWithKey. The key fingerprint is checked
// before any cipher work; a mismatch returns ErrEnvelopeKeyMismatch,
// while an authentication failure under the correct key returns
// ErrEnvelopeTampered.
func DecryptWithKey(key, encryptedData []byte) ([]byte, error) {
	if len(key) != EnvelopeKeySize {
		return nil, errors.New("session key must be 32 bytes for AES-256")
	}

	if len(encryptedData) < KeyFingerprintSize+EnvelopeNonceSize {
		return nil, fmt.Errorf("%w: envelope too short", ErrEnvelopeTampered)
	}

	fp := KeyFingerprint(key)
	var envFP [KeyFingerprintSize]byte
	copy(envFP[:], encryptedData[:KeyFingerprintSize])
	if envFP != fp {
		return nil, ErrEnvelopeKeyMismatch
	}

	nonce := encryptedData[KeyFingerprintSize : KeyFingerprintSize+EnvelopeNonceSize]
	ciphertext := encryptedData[KeyFingerprintSize+EnvelopeNonceSize:]

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, fp[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelopeTampered, err)
	}

	return plaintext, nil
}

// DeriveMasterKey creates a 32-byte master key from an operator
// passphrase using Argon2id, so demo deployments do not need to manage
// raw key material.
//
// Parameters: time=1, memory=64*1024, threads=4, keyLen=32.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, EnvelopeKeySize)
}
