// Package webhook delivers final job states to caller-supplied callback
// URLs. Delivery is fire-and-forget: completion events flow through a
// dedicated channel into a small dispatcher pool, and every failure is
// dropped so webhooks can never affect job correctness.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/core"
)

// Defaults for the dispatcher shape. Webhooks should be quick, hence the
// short delivery timeout.
const (
	DefaultWorkers         = 2
	DefaultQueueDepth      = 64
	DefaultDeliveryTimeout = 5 * time.Second
)

// Payload is the JSON body POSTed to the callback URL.
type Payload struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// PayloadFor builds the delivery payload for a terminal job.
func PayloadFor(job core.Job) Payload {
	return Payload{
		JobID:    job.ID,
		Status:   string(job.Status),
		Error:    job.Error,
		Filename: job.Filename,
		MIMEType: job.MIMEType,
	}
}

// event is one pending delivery.
type event struct {
	url     string
	payload Payload
}

// Dispatcher consumes completion events and POSTs them to callback URLs.
type Dispatcher struct {
	client  *http.Client
	events  chan event
	workers int
	log     *logger.Logger
}

// New creates a dispatcher. Non-positive workers or queueDepth fall back to
// the defaults.
func New(workers, queueDepth int, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}

	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}

	return &Dispatcher{
		client:  &http.Client{Timeout: timeout},
		events:  make(chan event, queueDepth),
		workers: workers,
		log:     log,
	}
}

// JobCompleted enqueues a delivery for the job's callback URL. Jobs without
// a callback URL are skipped; if the queue is full the event is dropped,
// which is within the no-retry delivery contract.
func (d *Dispatcher) JobCompleted(job core.Job) {
	if job.CallbackURL == "" {
		return
	}

	select {
	case d.events <- event{url: job.CallbackURL, payload: PayloadFor(job)}:
	default:
		d.log.Warn("Webhook queue full, dropping delivery for job %s", job.ID)
	}
}

// Run consumes the event channel until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var waitGroup sync.WaitGroup

	for range d.workers {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case next := <-d.events:
					d.deliver(ctx, next)
				}
			}
		}()
	}

	waitGroup.Wait()

	return nil
}

// deliver POSTs one payload. Failures (network errors, timeouts, non-2xx
// responses) are logged and discarded; there are no retries.
func (d *Dispatcher) deliver(ctx context.Context, evt event) {
	err := d.post(ctx, evt)
	if err != nil {
		d.log.Warn("Webhook delivery for job %s failed: %v", evt.payload.JobID, err)
	}
}

func (d *Dispatcher) post(ctx context.Context, evt event) error {
	body, err := json.Marshal(evt.payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, evt.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to POST webhook to %s: %w", evt.url, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook endpoint %s returned %s", evt.url, resp.Status)
	}

	return nil
}
