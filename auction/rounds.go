package auction

import (
	"errors"
	"sync"
)

// ErrRoundNotFound is returned when a round ID is unknown.
var ErrRoundNotFound = errors.New("round not found")

// ErrRoundExists is returned when a round ID is already taken.
var ErrRoundExists = errors.New("round already exists")

// RoundIndex holds the rounds of one session, keyed by ID.
type RoundIndex struct {
	mu     sync.RWMutex
	rounds map[string]*Round
}

// NewRoundIndex creates an empty index.
func NewRoundIndex() *RoundIndex {
	return &RoundIndex{rounds: make(map[string]*Round)}
}

// Create registers a new round in the collecting state.
func (ri *RoundIndex) Create(id string, totalSupply, minPrice, maxPrice float64) (*Round, error) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	if _, ok := ri.rounds[id]; ok {
		return nil, ErrRoundExists
	}
	r := NewRound(id, totalSupply, minPrice, maxPrice)
	ri.rounds[id] = r
	return r, nil
}

// Get looks up a round by ID.
func (ri *RoundIndex) Get(id string) (*Round, error) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	r, ok := ri.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	return r, nil
}

// IDs returns the registered round IDs, unordered.
func (ri *RoundIndex) IDs() []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	ids := make([]string, 0, len(ri.rounds))
	for id := range ri.rounds {
		ids = append(ids, id)
	}
	return ids
}
