package slots

import (
	"context"
	"sync"
)

// MemoryStore is an in-process slot store for tests and single-node setups.
type MemoryStore struct {
	mu     sync.Mutex
	groups map[string]*State
}

// NewMemoryStore creates an empty in-memory slot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]*State)}
}

func (s *MemoryStore) group(key string) *State {
	state, ok := s.groups[key]
	if !ok {
		state = &State{}
		s.groups[key] = state
	}

	return state
}

func (s *MemoryStore) Enqueue(_ context.Context, key, runID string, replaceQueued bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.group(key)

	if state.InFlight == "" {
		state.InFlight = runID

		return "", nil
	}

	if replaceQueued && len(state.Queued) > 0 {
		superseded := state.Queued[len(state.Queued)-1]
		state.Queued[len(state.Queued)-1] = runID

		return superseded, nil
	}

	state.Queued = append(state.Queued, runID)

	return "", nil
}

func (s *MemoryStore) Release(_ context.Context, key, runID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.group(key)

	if state.InFlight != runID {
		return "", nil
	}

	state.InFlight = ""

	if len(state.Queued) > 0 {
		state.InFlight = state.Queued[0]
		state.Queued = state.Queued[1:]
	}

	return state.InFlight, nil
}

func (s *MemoryStore) Remove(_ context.Context, key, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.group(key)

	if state.InFlight == runID {
		state.InFlight = ""

		return nil
	}

	for i, queued := range state.Queued {
		if queued == runID {
			state.Queued = append(state.Queued[:i], state.Queued[i+1:]...)

			break
		}
	}

	return nil
}

func (s *MemoryStore) State(_ context.Context, key string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.group(key)

	snapshot := State{InFlight: state.InFlight}
	snapshot.Queued = append(snapshot.Queued, state.Queued...)

	return snapshot, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
