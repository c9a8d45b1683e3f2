package kms

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err, "Failed to generate test master key")
	return key
}

func TestSessionKMS_New(t *testing.T) {
	kms, err := NewSessionKMS(testMasterKey(t))
	require.NoError(t, err, "NewSessionKMS should succeed with a 32-byte key")
	assert.NotNil(t, kms)

	_, err = NewSessionKMS(make([]byte, 16))
	assert.Error(t, err, "Should fail with master key < 32 bytes")
}

func TestSessionKMS_DeriveSessionKey(t *testing.T) {
	kms, err := NewSessionKMS(testMasterKey(t))
	require.NoError(t, err)

	key1 := kms.DeriveSessionKey("session-a")
	key2 := kms.DeriveSessionKey("session-a")
	assert.Equal(t, key1, key2, "Derivation must be deterministic per session ID")
	assert.Len(t, key1, 32, "Session key should be 32 bytes")

	key3 := kms.DeriveSessionKey("session-b")
	assert.NotEqual(t, key1, key3, "Distinct sessions must derive distinct keys")
}

func TestSessionKMS_DomainSeparation(t *testing.T) {
	kms, err := NewSessionKMS(testMasterKey(t))
	require.NoError(t, err)

	envelopeKey := kms.DeriveSessionKey("session-a")
	signerSeed := kms.DeriveSignerSeed("session-a")
	assert.NotEqual(t, envelopeKey, signerSeed, "Envelope key and signer seed must be domain separated")
}

func TestSessionKMS_FromPassphrase(t *testing.T) {
	salt := []byte("stable-salt")

	kms1, err := NewSessionKMSFromPassphrase([]byte("operator passphrase"), salt)
	require.NoError(t, err, "Passphrase KMS should succeed")
	kms2, err := NewSessionKMSFromPassphrase([]byte("operator passphrase"), salt)
	require.NoError(t, err)

	assert.Equal(t, kms1.DeriveSessionKey("s"), kms2.DeriveSessionKey("s"),
		"Same passphrase and salt must reconstruct the same session keys")

	_, err = NewSessionKMSFromPassphrase(nil, salt)
	assert.Error(t, err, "Empty passphrase must be rejected")
}
