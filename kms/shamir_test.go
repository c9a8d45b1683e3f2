package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShamirKMS_New(t *testing.T) {
	masterKey := testMasterKey(t)

	kms, shares, err := NewShamirKMS(masterKey, 3, 5)
	require.NoError(t, err, "NewShamirKMS should succeed with valid parameters")
	assert.NotNil(t, kms, "KMS should not be nil")
	assert.Len(t, shares, 5, "Should generate 5 shares")
	assert.True(t, kms.IsUnlocked(), "KMS should start unlocked when initialized with the master key")

	_, _, err = NewShamirKMS(masterKey, 6, 5)
	assert.Error(t, err, "Should fail when threshold > total shares")

	_, _, err = NewShamirKMS(masterKey, 1, 5)
	assert.Error(t, err, "Should fail when threshold < 2")
}

func TestShamirKMS_Recovery(t *testing.T) {
	masterKey := testMasterKey(t)

	original, shares, err := NewShamirKMS(masterKey, 3, 5)
	require.NoError(t, err)

	recovered := NewShamirKMSRecovery(3)
	assert.False(t, recovered.IsUnlocked(), "Recovery KMS should start locked")

	_, err = recovered.DeriveSessionKey("session-a")
	assert.Error(t, err, "Locked KMS must not derive session keys")

	require.NoError(t, recovered.SubmitShare(0, shares[0]))
	require.NoError(t, recovered.SubmitShare(1, shares[1]))
	assert.False(t, recovered.IsUnlocked(), "Two of three shares must not unlock")

	require.NoError(t, recovered.SubmitShare(2, shares[2]))
	assert.True(t, recovered.IsUnlocked(), "Threshold shares should unlock the KMS")

	wantKey := original.SessionKMS().DeriveSessionKey("session-a")
	gotKey, err := recovered.DeriveSessionKey("session-a")
	require.NoError(t, err, "Unlocked KMS should derive session keys")
	assert.Equal(t, wantKey, gotKey, "Recovered KMS must derive the same session keys")
}

func TestShamirKMS_SubmitShareValidation(t *testing.T) {
	kms := NewShamirKMSRecovery(2)

	err := kms.SubmitShare(0, nil)
	assert.Error(t, err, "Empty shares must be rejected")

	masterKey := testMasterKey(t)
	unlocked, shares, err := NewShamirKMS(masterKey, 2, 3)
	require.NoError(t, err)
	assert.True(t, unlocked.IsUnlocked())

	err = unlocked.SubmitShare(0, shares[0])
	assert.Error(t, err, "Submitting shares to an unlocked KMS must fail")
}
