package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fhe16/confidential-compute-backend/aggregate"
	"github.com/fhe16/confidential-compute-backend/auction"
	"github.com/fhe16/confidential-compute-backend/cryptoutils"
	"github.com/fhe16/confidential-compute-backend/dispatch"
	"github.com/fhe16/confidential-compute-backend/envelope"
	"github.com/fhe16/confidential-compute-backend/kms"
	"github.com/fhe16/confidential-compute-backend/ledger"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// KeySource derives the per-session key material. Implemented by
// kms.SessionKMS and kms.ShamirKMS.
type KeySource interface {
	DeriveSessionKey(sessionID string) ([]byte, error)
	DeriveSignerSeed(sessionID string) ([]byte, error)
}

// DirectKeySource adapts the infallible SessionKMS to KeySource.
func DirectKeySource(inner *kms.SessionKMS) KeySource {
	return directKMS{inner: inner}
}

type directKMS struct {
	inner *kms.SessionKMS
}

func (d directKMS) DeriveSessionKey(sessionID string) ([]byte, error) {
	return d.inner.DeriveSessionKey(sessionID), nil
}

func (d directKMS) DeriveSignerSeed(sessionID string) ([]byte, error) {
	return d.inner.DeriveSignerSeed(sessionID), nil
}

// Manager creates and tracks sessions. All key material flows from the
// KeySource; the manager itself never sees the master key.
type Manager struct {
	keys KeySource
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a manager over a SessionKMS.
func NewManager(k *kms.SessionKMS, log *slog.Logger) *Manager {
	return NewManagerWithSource(directKMS{inner: k}, log)
}

// NewManagerWithSource builds a manager over any key source, including
// a ShamirKMS that may still be locked.
func NewManagerWithSource(keys KeySource, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		keys:     keys,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Create derives keys for a new session and registers it. An empty ID
// gets a fresh UUID.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}

	sessionKey, err := m.keys.DeriveSessionKey(id)
	if err != nil {
		return nil, fmt.Errorf("could not derive session key: %w", err)
	}
	codec, err := envelope.NewCodec(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("could not build session codec: %w", err)
	}

	seed, err := m.keys.DeriveSignerSeed(id)
	if err != nil {
		return nil, fmt.Errorf("could not derive signer seed: %w", err)
	}
	signer, err := cryptoutils.NewSignerFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("could not build session signer: %w", err)
	}

	s := &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		Codec:      codec,
		Dispatcher: dispatch.NewDispatcher(codec),
		Ledger:     ledger.NewChain(),
		Signer:     signer,
		Cohorts:    aggregate.NewStore(),
		Rounds:     auction.NewRoundIndex(),
	}
	m.sessions[id] = s

	m.log.Info("session created", "session_id", id, "key_fingerprint", fmt.Sprintf("%x", codec.KeyFingerprint()))
	return s, nil
}

// Get looks up a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Reset drops a session's cohort store, rounds and audit chain while
// keeping its identity and keys. The envelope key is derived from the
// session ID, so previously sealed envelopes remain openable.
func (m *Manager) Reset(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	s.Ledger.Reset()
	s.Cohorts = aggregate.NewStore()
	s.Rounds = auction.NewRoundIndex()

	m.log.Info("session reset", "session_id", id)
	return nil
}

// Delete removes a session entirely.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// IDs returns the live session IDs, unordered.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
