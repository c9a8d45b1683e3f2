package cryptoutils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitVerify(t *testing.T) {
	salt, err := NewCommitmentSalt()
	require.NoError(t, err, "Salt generation should succeed")
	require.Len(t, salt, CommitmentSaltSize, "Salt should have the fixed size")

	value := []byte("bid:100:qty:40")
	c := Commit(value, salt)

	assert.True(t, VerifyCommitment(c, value, salt), "Commitment should verify with the original value and salt")
	assert.False(t, VerifyCommitment(c, []byte("bid:101:qty:40"), salt), "Different value must not verify")

	otherSalt, err := NewCommitmentSalt()
	require.NoError(t, err)
	assert.False(t, VerifyCommitment(c, value, otherSalt), "Different salt must not verify")
}

func TestCommit_SaltHidesValue(t *testing.T) {
	value := []byte("42")

	salt1, err := NewCommitmentSalt()
	require.NoError(t, err)
	salt2, err := NewCommitmentSalt()
	require.NoError(t, err)

	c1 := Commit(value, salt1)
	c2 := Commit(value, salt2)
	assert.NotEqual(t, c1, c2, "Same value under different salts must produce different commitments")
}

func TestSigner_SignVerify(t *testing.T) {
	signer, err := NewSigner()
	require.NoError(t, err, "Signer creation should succeed")

	payload := []byte(`{"decision":"completed"}`)
	sig, err := signer.Sign(payload)
	require.NoError(t, err, "Signing should succeed")
	require.Len(t, sig, 65, "Signature should be 65 bytes with recovery id")

	pubkey := signer.PublicKeyBytes()
	assert.True(t, VerifySignature(pubkey, payload, sig), "Signature should verify against the signer's public key")
	assert.False(t, VerifySignature(pubkey, []byte("tampered"), sig), "Signature must not verify a different payload")
}

func TestSigner_FromSeedDeterministic(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	s1, err := NewSignerFromSeed(seed)
	require.NoError(t, err, "Seeded signer creation should succeed")
	s2, err := NewSignerFromSeed(seed)
	require.NoError(t, err)

	assert.Equal(t, s1.PublicKeyBytes(), s2.PublicKeyBytes(), "Same seed must derive the same key")

	_, err = NewSignerFromSeed(seed[:16])
	assert.Error(t, err, "Short seeds must be rejected")
}
