// Package events_test tests the NATS completion publisher against an
// embedded server.
package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/events"
	"github.com/espeech/synthd/internal/webhook"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNats(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	natsServer := test.RunServer(&opts)

	conn, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		natsServer.Shutdown()
	})

	return conn
}

func TestPublishesCompletionEvent(t *testing.T) {
	t.Parallel()

	conn := startTestNats(t)

	testLogger, err := logger.New(t.TempDir(), "events-test.log")
	require.NoError(t, err)

	const subject = "synthd.jobs.completed"

	sub, err := conn.SubscribeSync(subject)
	require.NoError(t, err)

	publisher := events.New(conn, subject, testLogger)
	publisher.JobCompleted(core.Job{
		ID:       "job-1",
		Status:   core.StatusDone,
		Filename: "anna_xyz.mp3",
		MIMEType: "audio/mpeg",
	})

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var payload webhook.Payload

	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, "done", payload.Status)
	assert.Equal(t, "anna_xyz.mp3", payload.Filename)
	assert.Equal(t, "audio/mpeg", payload.MIMEType)
}
