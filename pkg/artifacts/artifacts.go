// Package artifacts implements the name-addressed artifact handoff between
// jobs: the producer writes a single-file image export under a key and every
// consumer reads the same key. Absence of an expected key is a hard failure.
package artifacts

import (
	"context"
	"errors"
	"io"
)

// ErrArtifactNotFound indicates the requested handoff key does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// Store is a name-addressed single-file artifact store.
type Store interface {
	// Put writes the artifact under the given key, replacing any previous
	// content.
	Put(ctx context.Context, key string, reader io.Reader, size int64) error

	// Fetch opens the artifact stored under the key. Returns
	// ErrArtifactNotFound when the key does not exist.
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// IsNotFound checks if an error indicates a missing artifact.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrArtifactNotFound)
}
