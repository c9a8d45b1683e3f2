package aggregate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

func populatedStore() *Store {
	store := NewStore()
	for i := 0; i < 4; i++ {
		store.Add(CohortRecord{
			ID:       fmt.Sprintf("rec-%d", i),
			Location: "tokyo",
			Category: "engineer",
			Envelope: interfaces.Envelope(fmt.Sprintf("env-%d", i)),
		})
	}
	store.Add(CohortRecord{
		ID:       "rec-osaka",
		Location: "osaka",
		Category: "engineer",
		Envelope: "env-osaka",
	})
	return store
}

func TestStore_Cohort(t *testing.T) {
	store := populatedStore()

	envs, err := store.Cohort(Query{Location: "tokyo"})
	require.NoError(t, err, "A cohort of 4 passes the default gate of 3")
	assert.Len(t, envs, 4)
}

func TestStore_KAnonymityGate(t *testing.T) {
	store := populatedStore()

	_, err := store.Cohort(Query{Location: "osaka"})
	require.Error(t, err, "A cohort of 1 must be rejected")
	assert.ErrorIs(t, err, interfaces.ErrKAnonymityViolation)
	assert.NotContains(t, err.Error(), "osaka", "The violation must not leak cohort detail")
}

func TestStore_CustomK(t *testing.T) {
	store := populatedStore()

	_, err := store.Cohort(Query{Location: "tokyo", MinCohortSize: 5})
	assert.ErrorIs(t, err, interfaces.ErrKAnonymityViolation, "A stricter k applies when requested")

	envs, err := store.Cohort(Query{Location: "tokyo", MinCohortSize: 2})
	require.NoError(t, err, "A looser k applies when requested")
	assert.Len(t, envs, 4)
}

func TestStore_MatchCount(t *testing.T) {
	store := populatedStore()

	assert.Equal(t, 4, store.MatchCount(Query{Location: "tokyo"}))
	assert.Equal(t, 5, store.MatchCount(Query{Category: "engineer"}), "Empty filter fields match everything")
	assert.Equal(t, 0, store.MatchCount(Query{Location: "kyoto"}))
	assert.Equal(t, 5, store.Len())
}
