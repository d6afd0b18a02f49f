package artifacts

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutAndFetch(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	content := "fake image export"

	err = store.Put(t.Context(), "runtime-nikolaik", strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)

	reader, err := store.Fetch(t.Context(), "runtime-nikolaik")
	require.NoError(t, err)

	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFileStore_PutReplacesPreviousContent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put(t.Context(), "runtime-golang", strings.NewReader("first"), 5)
	require.NoError(t, err)

	err = store.Put(t.Context(), "runtime-golang", strings.NewReader("second"), 6)
	require.NoError(t, err)

	reader, err := store.Fetch(t.Context(), "runtime-golang")
	require.NoError(t, err)

	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFileStore_FetchMissingKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Fetch(t.Context(), "runtime-missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFileStore_Exists(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	exists, err := store.Exists(t.Context(), "runtime-ubuntu")
	require.NoError(t, err)
	assert.False(t, exists)

	err = store.Put(t.Context(), "runtime-ubuntu", strings.NewReader("x"), 1)
	require.NoError(t, err)

	exists, err = store.Exists(t.Context(), "runtime-ubuntu")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStore_KeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()

	store, err := NewFileStore(root)
	require.NoError(t, err)

	err = store.Put(t.Context(), "../escape", strings.NewReader("x"), 1)
	require.NoError(t, err)

	reader, err := store.Fetch(t.Context(), "escape")
	require.NoError(t, err)
	reader.Close()
}
