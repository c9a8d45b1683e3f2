package aggregate

import (
	"fmt"
	"sync"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// DefaultMinCohortSize is the default k for the k-anonymity gate.
const DefaultMinCohortSize = 3

// CohortRecord pairs public cohort tags with the opaque envelope holding
// the sensitive fields. Location and category are deliberately public:
// they are what cohort membership is decided on, so the gate never needs
// to open an envelope.
type CohortRecord struct {
	ID       string              `json:"id"`
	Location string              `json:"location"`
	Category string              `json:"category"`
	Envelope interfaces.Envelope `json:"envelope"`
}

// Query selects a cohort by public tags. Empty filter fields match
// everything. MinCohortSize of zero falls back to DefaultMinCohortSize.
type Query struct {
	Location      string `json:"location"`
	Category      string `json:"category"`
	Metric        string `json:"metric"`
	MinCohortSize int    `json:"minCohortSize"`
}

func (q Query) k() int {
	if q.MinCohortSize <= 0 {
		return DefaultMinCohortSize
	}
	return q.MinCohortSize
}

func (q Query) matches(rec CohortRecord) bool {
	if q.Location != "" && q.Location != rec.Location {
		return false
	}
	if q.Category != "" && q.Category != rec.Category {
		return false
	}
	return true
}

// Store is the keyed, in-memory cohort index. It holds only envelopes
// and public tags and is the enforcement point for the k-anonymity gate:
// a query matching fewer than k records fails before any envelope leaves
// the store.
type Store struct {
	mu      sync.RWMutex
	records []CohortRecord
}

// NewStore creates an empty cohort store.
func NewStore() *Store {
	return &Store{}
}

// Add indexes one record.
func (s *Store) Add(rec CohortRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Len returns the number of indexed records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MatchCount counts records matching the query's public tags. No
// envelope is touched.
func (s *Store) MatchCount(q Query) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if q.matches(rec) {
			count++
		}
	}
	return count
}

// Cohort returns the envelopes of the matching cohort, or
// ErrKAnonymityViolation when the match count is below k. The error
// deliberately carries no cohort detail beyond the violation itself, and
// the check happens strictly before any decryption can occur.
func (s *Store) Cohort(q Query) ([]interfaces.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]interfaces.Envelope, 0, len(s.records))
	for _, rec := range s.records {
		if q.matches(rec) {
			matched = append(matched, rec.Envelope)
		}
	}

	if len(matched) < q.k() {
		return nil, fmt.Errorf("%w: need at least %d records", interfaces.ErrKAnonymityViolation, q.k())
	}

	return matched, nil
}
