// Package slots manages the concurrency-group slots shared by runs with the
// same (workflow, ref) key: one in-flight slot plus a queue. It is the only
// shared mutable resource between runs.
package slots

import "context"

// State is a snapshot of one concurrency group.
type State struct {
	InFlight string   `json:"in_flight,omitempty"`
	Queued   []string `json:"queued,omitempty"`
}

// Store tracks concurrency-group slots. Implementations must be safe for
// concurrent use.
type Store interface {
	// Enqueue places the run into the group. When the in-flight slot is
	// free the run takes it directly; otherwise it is queued. With
	// replaceQueued set, an already-queued run is superseded and its ID is
	// returned so the caller can cancel it; without it the queue grows.
	Enqueue(ctx context.Context, key, runID string, replaceQueued bool) (superseded string, err error)

	// Release frees the in-flight slot held by runID and promotes the head
	// of the queue into it. The promoted run ID is returned, or empty when
	// the queue was empty.
	Release(ctx context.Context, key, runID string) (promoted string, err error)

	// Remove drops a run from the group wherever it sits, without
	// promotion. Used when a queued run is cancelled out of band.
	Remove(ctx context.Context, key, runID string) error

	// State returns a snapshot of the group.
	State(ctx context.Context, key string) (State, error)

	Close() error
}
