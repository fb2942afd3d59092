// Package registry_test tests the in-memory job table.
package registry_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	reg := registry.New()

	created := reg.Create("https://example.com/hook")
	require.NotEmpty(t, created.ID)
	assert.Equal(t, core.StatusQueued, created.Status)
	assert.Equal(t, "https://example.com/hook", created.CallbackURL)

	got, err := reg.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = reg.Get("missing")
	require.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestUpdateIsVisibleToReaders(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	job := reg.Create("")

	err := reg.Update(job.ID, func(j *core.Job) {
		j.Status = core.StatusRunning
	})
	require.NoError(t, err)

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, got.Status)

	err = reg.Update("missing", func(*core.Job) {})
	require.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestTouchBumpsLastAccessAndFileTimes(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	job := reg.Create("")

	path := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o600))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	require.NoError(t, reg.Update(job.ID, func(j *core.Job) {
		j.Status = core.StatusDone
		j.ResultPath = path
	}))

	reg.Touch(job.ID)

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.False(t, got.LastAccess.IsZero())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)

	// Touching an unknown job is a no-op.
	reg.Touch("missing")
}

func TestMarkEvictedClearsArtifactFields(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	job := reg.Create("")

	require.NoError(t, reg.Update(job.ID, func(j *core.Job) {
		j.Status = core.StatusDone
		j.ResultPath = "/tmp/gone.wav"
		j.Filename = "gone.wav"
		j.MIMEType = "audio/wav"
	}))

	reg.MarkEvicted(job.ID)

	got, err := reg.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDone, got.Status)
	assert.Empty(t, got.ResultPath)
	assert.Empty(t, got.Filename)
	assert.Empty(t, got.MIMEType)
}

func TestIsTracked(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	job := reg.Create("")

	require.NoError(t, reg.Update(job.ID, func(j *core.Job) {
		j.ResultPath = "/outputs/voice_abc.wav"
	}))

	assert.True(t, reg.IsTracked("/outputs/voice_abc.wav"))
	assert.False(t, reg.IsTracked("/outputs/orphan.wav"))
}

func TestConcurrentCreatesYieldDistinctIDs(t *testing.T) {
	t.Parallel()

	const n = 64

	reg := registry.New()

	var waitGroup sync.WaitGroup

	ids := make(chan string, n)

	for range n {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()
			ids <- reg.Create("").ID
		}()
	}

	waitGroup.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "job id %s issued twice", id)
		seen[id] = true
	}

	assert.Len(t, seen, n)
	assert.Len(t, reg.Snapshot(), n)
}
