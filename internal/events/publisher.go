// Package events publishes terminal job states to a NATS subject so other
// services can react to completions without polling. This is a notification
// fan-out next to the webhook dispatcher, not a work queue; publish
// failures are logged and dropped.
package events

import (
	"encoding/json"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/webhook"
	"github.com/nats-io/nats.go"
)

// Publisher emits completion events on a fixed subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *logger.Logger
}

// New creates a publisher over an established NATS connection.
func New(conn *nats.Conn, subject string, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:    conn,
		subject: subject,
		log:     log,
	}
}

// JobCompleted publishes the job's final state. The payload matches the
// webhook body, so subscribers and webhook consumers see the same shape.
func (p *Publisher) JobCompleted(job core.Job) {
	data, err := json.Marshal(webhook.PayloadFor(job))
	if err != nil {
		p.log.Warn("Failed to marshal completion event for job %s: %v", job.ID, err)

		return
	}

	err = p.conn.Publish(p.subject, data)
	if err != nil {
		p.log.Warn("Failed to publish completion event for job %s: %v", job.ID, err)
	}
}
