// Package kms manages the master key of the simulation engine and
// derives the per-session envelope keys from it. Keys are derived
// deterministically, so a session can be reconstructed from the master
// key and the session identifier alone; nothing but the master key needs
// custody.
package kms

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/fhe16/confidential-compute-backend/cryptoutils"
)

// SessionKMS derives per-session symmetric keys from a master key.
// Suitable for the simulation's single-operator deployments; master key
// custody across operators is handled by ShamirKMS.
type SessionKMS struct {
	masterKey []byte
	mu        sync.RWMutex
}

// NewSessionKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSessionKMS(masterKey []byte) (*SessionKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	k := &SessionKMS{masterKey: make([]byte, len(masterKey))}
	copy(k.masterKey, masterKey)
	return k, nil
}

// NewSessionKMSFromPassphrase derives the master key from an operator
// passphrase with Argon2id. The salt must be stable across restarts for
// sessions to remain reconstructable.
func NewSessionKMSFromPassphrase(passphrase, salt []byte) (*SessionKMS, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}
	return NewSessionKMS(cryptoutils.DeriveMasterKey(passphrase, salt))
}

// DeriveSessionKey derives the 32-byte envelope key for a session.
// Same master key and session ID always produce the same key, so two
// logically concurrent rounds with distinct IDs own independent keys.
func (k *SessionKMS) DeriveSessionKey(sessionID string) []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()

	h := sha256.New()
	h.Write(k.masterKey)
	h.Write([]byte(sessionID))
	h.Write([]byte("envelope"))
	return h.Sum(nil)
}

// DeriveSignerSeed derives the 32-byte seed for a session's audit block
// signer, domain-separated from the envelope key.
func (k *SessionKMS) DeriveSignerSeed(sessionID string) []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()

	h := sha256.New()
	h.Write(k.masterKey)
	h.Write([]byte(sessionID))
	h.Write([]byte("signer"))
	return h.Sum(nil)
}

// WithSeed creates a new SessionKMS with the provided seed.
// Useful for testing with deterministic keys.
func (k *SessionKMS) WithSeed(seed []byte) *SessionKMS {
	newkms := &SessionKMS{masterKey: make([]byte, len(seed))}
	copy(newkms.masterKey, seed)
	return newkms
}
