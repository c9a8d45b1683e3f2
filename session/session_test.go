package session

import (
	"context"
	"crypto/rand"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhe16/confidential-compute-backend/dispatch"
	"github.com/fhe16/confidential-compute-backend/interfaces"
	"github.com/fhe16/confidential-compute-backend/kms"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)

	k, err := kms.NewSessionKMS(masterKey)
	require.NoError(t, err)
	return NewManager(k, slog.Default())
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Create("session-a")
	require.NoError(t, err, "Create should succeed")
	assert.Equal(t, "session-a", s.ID)
	assert.NotNil(t, s.Codec)
	assert.NotNil(t, s.Ledger)
	assert.NotNil(t, s.Signer)

	got, err := m.Get("session-a")
	require.NoError(t, err)
	assert.Same(t, s, got, "Get returns the registered session")

	again, err := m.Create("session-a")
	require.NoError(t, err)
	assert.Same(t, s, again, "Creating an existing ID returns the existing session")

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	generated, err := m.Create("")
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID, "An empty ID gets a generated UUID")
}

func TestManager_SessionIsolation(t *testing.T) {
	m := newTestManager(t)

	a, err := m.Create("session-a")
	require.NoError(t, err)
	b, err := m.Create("session-b")
	require.NoError(t, err)

	env, err := interfaces.SealRecord(a.Codec, interfaces.Record{"price": 10.0})
	require.NoError(t, err)

	_, err = b.Codec.Open(env)
	require.Error(t, err, "An envelope sealed in one session must not open in another")
	assert.ErrorIs(t, err, interfaces.ErrKeyMismatch)

	assert.NotEqual(t, a.Signer.PublicKeyBytes(), b.Signer.PublicKeyBytes(),
		"Sessions must own distinct signing keys")
}

func TestManager_KeysAreDeterministic(t *testing.T) {
	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)

	k1, err := kms.NewSessionKMS(masterKey)
	require.NoError(t, err)
	k2, err := kms.NewSessionKMS(masterKey)
	require.NoError(t, err)

	m1 := NewManager(k1, slog.Default())
	m2 := NewManager(k2, slog.Default())

	a, err := m1.Create("shared-id")
	require.NoError(t, err)
	b, err := m2.Create("shared-id")
	require.NoError(t, err)

	env, err := a.Codec.Seal([]byte("reconstructable"))
	require.NoError(t, err)
	opened, err := b.Codec.Open(env)
	require.NoError(t, err, "The same master key and session ID must reconstruct the same codec")
	assert.Equal(t, []byte("reconstructable"), opened)
}

func TestSession_ComputeAppendsAudit(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create("session-a")
	require.NoError(t, err)

	envs := make([]interfaces.Envelope, 3)
	for i, price := range []float64{10, 8, 6} {
		env, err := interfaces.SealRecord(s.Codec, interfaces.Record{"price": price, "quantity": 40.0})
		require.NoError(t, err)
		envs[i] = env
	}

	result, err := s.Compute(context.Background(), envs, interfaces.OpCalculateClearingPrice, dispatch.Params{TotalSupply: 60, MinPrice: 1})
	require.NoError(t, err, "Compute should succeed")
	assert.NotNil(t, result.Clearing)

	require.Equal(t, 1, s.Ledger.Len(), "Every computation appends one audit block")
	block := s.Ledger.Blocks()[0]
	assert.Equal(t, "calculateClearingPrice", block.Payload.SubjectID)
	assert.Equal(t, "completed", block.Payload.Decision)
	assert.NotEmpty(t, block.Payload.InputHash)
	assert.True(t, s.VerifyEvidence(block), "Audit evidence carries a valid signature")
	require.NoError(t, s.Ledger.Verify())
}

func TestSession_ComputeFailureIsAudited(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create("session-a")
	require.NoError(t, err)

	// Two envelopes against the default k of 3.
	envs := make([]interfaces.Envelope, 2)
	for i := range envs {
		env, err := interfaces.SealRecord(s.Codec, interfaces.Record{"salary": 100.0})
		require.NoError(t, err)
		envs[i] = env
	}

	_, err = s.Compute(context.Background(), envs, interfaces.OpAverage, dispatch.Params{Field: "salary"})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrKAnonymityViolation)

	require.Equal(t, 1, s.Ledger.Len(), "Denied computations are audited too")
	assert.Contains(t, s.Ledger.Blocks()[0].Payload.Decision, "failed")
}

func TestSession_VerifyEvidenceRejectsTampering(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create("session-a")
	require.NoError(t, err)

	block, err := s.RecordEvidence("checkLimit", "denied", []byte("input"))
	require.NoError(t, err)
	require.True(t, s.VerifyEvidence(block))

	block.Payload.Decision = "allowed"
	assert.False(t, s.VerifyEvidence(block), "An edited decision must break the signature")
}

func TestManager_Reset(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Create("session-a")
	require.NoError(t, err)

	env, err := s.Codec.Seal([]byte("survives reset"))
	require.NoError(t, err)

	_, err = s.RecordEvidence("op", "completed", []byte("input"))
	require.NoError(t, err)
	_, err = s.Rounds.Create("round-1", 60, 1, 100)
	require.NoError(t, err)

	require.NoError(t, m.Reset("session-a"))

	assert.Equal(t, 0, s.Ledger.Len(), "Reset clears the audit chain")
	_, err = s.Rounds.Get("round-1")
	assert.Error(t, err, "Reset clears rounds")

	opened, err := s.Codec.Open(env)
	require.NoError(t, err, "Envelopes sealed before reset still open; keys derive from the session ID")
	assert.Equal(t, []byte("survives reset"), opened)

	assert.ErrorIs(t, m.Reset("missing"), ErrSessionNotFound)
}
