// Package webhook_test tests fire-and-forget webhook delivery.
package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*webhook.Dispatcher, context.CancelFunc) {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "webhook-test.log")
	require.NoError(t, err)

	dispatcher := webhook.New(1, 16, time.Second, testLogger)

	ctx, cancel := context.WithCancel(context.Background())

	go func() { _ = dispatcher.Run(ctx) }()

	return dispatcher, cancel
}

func TestDeliversFinalStatePayload(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received webhook.Payload
		gotOne   bool
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhook.Payload

		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		mu.Lock()
		received = payload
		gotOne = true
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, cancel := newTestDispatcher(t)
	defer cancel()

	dispatcher.JobCompleted(core.Job{
		ID:          "job-1",
		Status:      core.StatusDone,
		Filename:    "anna_abc.wav",
		MIMEType:    "audio/wav",
		CallbackURL: server.URL,
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return gotOne
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "job-1", received.JobID)
	assert.Equal(t, "done", received.Status)
	assert.Equal(t, "anna_abc.wav", received.Filename)
	assert.Equal(t, "audio/wav", received.MIMEType)
	assert.Empty(t, received.Error)
}

func TestUnreachableEndpointIsSilentlyDropped(t *testing.T) {
	t.Parallel()

	dispatcher, cancel := newTestDispatcher(t)
	defer cancel()

	job := core.Job{
		ID:          "job-2",
		Status:      core.StatusError,
		Error:       "synthesis failed",
		CallbackURL: "http://127.0.0.1:1/unreachable",
	}

	// Must not panic, block, or surface anywhere.
	dispatcher.JobCompleted(job)

	time.Sleep(100 * time.Millisecond)

	// The job value the caller holds is untouched by delivery failure.
	assert.Equal(t, core.StatusError, job.Status)
	assert.Equal(t, "synthesis failed", job.Error)
}

func TestNoCallbackURLMeansNoDelivery(t *testing.T) {
	t.Parallel()

	requests := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, cancel := newTestDispatcher(t)
	defer cancel()

	dispatcher.JobCompleted(core.Job{ID: "job-3", Status: core.StatusDone, CallbackURL: ""})

	select {
	case <-requests:
		t.Fatal("no delivery expected without a callback URL")
	case <-time.After(150 * time.Millisecond):
	}
}
