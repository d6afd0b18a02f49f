package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FirstRunTakesInFlightSlot(t *testing.T) {
	store := NewMemoryStore()

	superseded, err := store.Enqueue(t.Context(), "wf@main", "run-1", false)
	require.NoError(t, err)
	assert.Empty(t, superseded)

	state, err := store.State(t.Context(), "wf@main")
	require.NoError(t, err)
	assert.Equal(t, "run-1", state.InFlight)
	assert.Empty(t, state.Queued)
}

func TestMemoryStore_ReplaceQueuedSupersedesLastQueued(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Enqueue(t.Context(), "wf@pr-1", "run-1", true)
	require.NoError(t, err)

	superseded, err := store.Enqueue(t.Context(), "wf@pr-1", "run-2", true)
	require.NoError(t, err)
	assert.Empty(t, superseded, "empty queue has nothing to supersede")

	superseded, err = store.Enqueue(t.Context(), "wf@pr-1", "run-3", true)
	require.NoError(t, err)
	assert.Equal(t, "run-2", superseded)

	state, err := store.State(t.Context(), "wf@pr-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", state.InFlight)
	assert.Equal(t, []string{"run-3"}, state.Queued)
}

func TestMemoryStore_QueueGrowsWithoutReplace(t *testing.T) {
	store := NewMemoryStore()

	for _, runID := range []string{"run-1", "run-2", "run-3"} {
		superseded, err := store.Enqueue(t.Context(), "wf@main", runID, false)
		require.NoError(t, err)
		assert.Empty(t, superseded)
	}

	state, err := store.State(t.Context(), "wf@main")
	require.NoError(t, err)
	assert.Equal(t, "run-1", state.InFlight)
	assert.Equal(t, []string{"run-2", "run-3"}, state.Queued)
}

func TestMemoryStore_ReleasePromotesQueueHead(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Enqueue(t.Context(), "wf@main", "run-1", false)
	require.NoError(t, err)
	_, err = store.Enqueue(t.Context(), "wf@main", "run-2", false)
	require.NoError(t, err)

	promoted, err := store.Release(t.Context(), "wf@main", "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", promoted)

	promoted, err = store.Release(t.Context(), "wf@main", "run-2")
	require.NoError(t, err)
	assert.Empty(t, promoted)
}

func TestMemoryStore_ReleaseByNonHolderIsNoop(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Enqueue(t.Context(), "wf@main", "run-1", false)
	require.NoError(t, err)
	_, err = store.Enqueue(t.Context(), "wf@main", "run-2", false)
	require.NoError(t, err)

	promoted, err := store.Release(t.Context(), "wf@main", "run-2")
	require.NoError(t, err)
	assert.Empty(t, promoted)

	state, err := store.State(t.Context(), "wf@main")
	require.NoError(t, err)
	assert.Equal(t, "run-1", state.InFlight)
}

func TestMemoryStore_RemoveDropsQueuedRunWithoutPromotion(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Enqueue(t.Context(), "wf@main", "run-1", false)
	require.NoError(t, err)
	_, err = store.Enqueue(t.Context(), "wf@main", "run-2", false)
	require.NoError(t, err)

	err = store.Remove(t.Context(), "wf@main", "run-2")
	require.NoError(t, err)

	state, err := store.State(t.Context(), "wf@main")
	require.NoError(t, err)
	assert.Equal(t, "run-1", state.InFlight)
	assert.Empty(t, state.Queued)
}

func TestMemoryStore_GroupsAreIndependent(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Enqueue(t.Context(), "wf@main", "run-1", false)
	require.NoError(t, err)
	_, err = store.Enqueue(t.Context(), "wf@pr-1", "run-2", false)
	require.NoError(t, err)

	state, err := store.State(t.Context(), "wf@pr-1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", state.InFlight)
}
