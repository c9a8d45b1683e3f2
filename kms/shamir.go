package kms

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/shamir"
)

// ShamirKMS wraps SessionKMS with Shamir Secret Sharing custody of the
// master key. On setup the master key is split into shares distributed
// to operators; a restarted engine stays locked until the threshold
// number of shares has been submitted and the key reconstructed. The
// master key only ever lives in memory.
type ShamirKMS struct {
	mu             sync.RWMutex
	inner          *SessionKMS
	threshold      int
	receivedShares map[int][]byte
}

// NewShamirKMS splits a master key into total shares with the given
// reconstruction threshold and returns an unlocked KMS together with the
// shares. The caller distributes the shares and erases the original key.
func NewShamirKMS(masterKey []byte, threshold, total int) (*ShamirKMS, [][]byte, error) {
	if threshold < 2 {
		return nil, nil, errors.New("threshold must be at least 2")
	}
	if total < threshold {
		return nil, nil, errors.New("total shares must be at least equal to threshold")
	}

	inner, err := NewSessionKMS(masterKey)
	if err != nil {
		return nil, nil, err
	}

	shares, err := shamir.Split(masterKey, total, threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split master key: %w", err)
	}

	return &ShamirKMS{
		inner:          inner,
		threshold:      threshold,
		receivedShares: make(map[int][]byte),
	}, shares, nil
}

// NewShamirKMSRecovery creates a locked ShamirKMS awaiting shares.
func NewShamirKMSRecovery(threshold int) *ShamirKMS {
	return &ShamirKMS{
		threshold:      threshold,
		receivedShares: make(map[int][]byte),
	}
}

// SubmitShare stores one share. When the threshold is reached the master
// key is reconstructed, the KMS unlocks and all shares are wiped from
// memory.
func (k *ShamirKMS) SubmitShare(shareIndex int, share []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.inner != nil {
		return errors.New("KMS is already unlocked")
	}
	if len(share) == 0 {
		return errors.New("empty share")
	}

	k.receivedShares[shareIndex] = share
	return k.tryReconstruct()
}

func (k *ShamirKMS) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil // Not enough shares yet, but this is not an error
	}

	shares := make([][]byte, 0, len(k.receivedShares))
	for _, share := range k.receivedShares {
		shares = append(shares, share)
	}

	masterKey, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct master key: %w", err)
	}

	inner, err := NewSessionKMS(masterKey)
	if err != nil {
		return err
	}
	k.inner = inner

	for i := range k.receivedShares {
		wipeBytes(k.receivedShares[i])
	}
	k.receivedShares = make(map[int][]byte)
	wipeBytes(masterKey)

	return nil
}

// IsUnlocked reports whether the master key has been reconstructed.
func (k *ShamirKMS) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.inner != nil
}

// DeriveSessionKey delegates to the inner SessionKMS once unlocked.
func (k *ShamirKMS) DeriveSessionKey(sessionID string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.inner == nil {
		return nil, errors.New("KMS is locked - need more shares to unlock")
	}
	return k.inner.DeriveSessionKey(sessionID), nil
}

// DeriveSignerSeed delegates to the inner SessionKMS once unlocked.
func (k *ShamirKMS) DeriveSignerSeed(sessionID string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.inner == nil {
		return nil, errors.New("KMS is locked - need more shares to unlock")
	}
	return k.inner.DeriveSignerSeed(sessionID), nil
}

// SessionKMS returns the unlocked inner KMS, or nil while locked.
func (k *ShamirKMS) SessionKMS() *SessionKMS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.inner
}

// Securely wipe data from memory
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
