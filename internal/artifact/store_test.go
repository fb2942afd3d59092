// Package artifact_test tests the on-disk artifact store.
package artifact_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/espeech/synthd/internal/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNameFormat(t *testing.T) {
	t.Parallel()

	store, err := artifact.New(t.TempDir())
	require.NoError(t, err)

	name := store.NewName("anna", "wav")
	assert.True(t, strings.HasPrefix(name, "anna_"))
	assert.True(t, strings.HasSuffix(name, ".wav"))
	assert.Len(t, name, len("anna_")+10+len(".wav"))

	other := store.NewName("anna", "wav")
	assert.NotEqual(t, name, other, "suffixes must be unique")
}

func TestWriteExistsRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifact.New(dir)
	require.NoError(t, err)

	path, err := store.Write("anna_0123456789.mp3", []byte("mp3 bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "anna_0123456789.mp3"), path)
	assert.True(t, store.Exists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3 bytes"), data)

	require.NoError(t, store.Remove(path))
	assert.False(t, store.Exists(path))

	// Removing an already-missing file is not an error.
	require.NoError(t, store.Remove(path))
}

func TestListSkipsDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := artifact.New(dir)
	require.NoError(t, err)

	_, err = store.Write("a.wav", []byte("x"))
	require.NoError(t, err)
	_, err = store.Write("b.mp3", []byte("y"))
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o750))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, entry := range entries {
		assert.False(t, entry.ModTime.IsZero())
	}
}

func TestNewCreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "outputs")

	store, err := artifact.New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
