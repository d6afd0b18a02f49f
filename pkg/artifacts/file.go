package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps artifacts as files under a root directory. Suitable for
// single-host deployments and tests.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed artifact store rooted at the given
// directory, creating it if needed.
func NewFileStore(root string) (*FileStore, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact root %s: %w", cleanRoot, err)
	}

	return &FileStore{root: cleanRoot}, nil
}

func (s *FileStore) path(key string) string {
	// Keys are flat names; strip any path separators to keep artifacts
	// inside the root.
	return filepath.Join(s.root, filepath.Base(key))
}

func (s *FileStore) Put(_ context.Context, key string, reader io.Reader, _ int64) error {
	target := s.path(key)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for artifact %s: %w", key, err)
	}

	_, err = io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write artifact %s: %w", key, err)
	}

	err = tmp.Close()
	if err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to close artifact %s: %w", key, err)
	}

	err = os.Rename(tmp.Name(), target)
	if err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to store artifact %s: %w", key, err)
	}

	return nil
}

func (s *FileStore) Fetch(_ context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("artifact %s: %w", key, ErrArtifactNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", key, err)
	}

	return file, nil
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to stat artifact %s: %w", key, err)
	}

	return true, nil
}
