// Package scheduler admits synthesis requests under a fixed concurrency
// bound and drives each job through its state machine. The shared model is
// a single-flight resource, so the default pool size is one worker; tasks
// queue FIFO behind the pool.
package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/artifact"
	"github.com/espeech/synthd/internal/codec"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/registry"
)

// Defaults for the pool shape.
const (
	DefaultWorkers    = 1
	DefaultQueueDepth = 256
)

// Largest seed the synthesis engine accepts. Out-of-range seeds are
// replaced with a fresh random one, which is recorded on the job so the
// caller can reproduce the result.
const maxSeed = int64(1<<31 - 1)

// task binds one queued job to its synthesis parameters.
type task struct {
	jobID  string
	voice  core.Voice
	params core.SynthesisParams
	format string
}

// Pool is the bounded worker pool.
type Pool struct {
	registry  *registry.Registry
	store     *artifact.Store
	synth     core.Synthesizer
	notifiers []core.Notifier
	tasks     chan task
	workers   int
	log       *logger.Logger
}

// New creates a pool. Non-positive workers or queueDepth fall back to the
// defaults. Notifiers are invoked after every terminal transition.
func New(
	reg *registry.Registry,
	store *artifact.Store,
	synth core.Synthesizer,
	workers, queueDepth int,
	log *logger.Logger,
	notifiers ...core.Notifier,
) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}

	return &Pool{
		registry:  reg,
		store:     store,
		synth:     synth,
		notifiers: notifiers,
		tasks:     make(chan task, queueDepth),
		workers:   workers,
		log:       log,
	}
}

// Submit creates a queued job for the request and enqueues it. It never
// blocks on synthesis; a full queue rejects the submission with
// core.ErrQueueFull and leaves no job record behind.
func (p *Pool) Submit(
	voice core.Voice,
	params core.SynthesisParams,
	format, callbackURL string,
) (string, error) {
	job := p.registry.Create(callbackURL)

	queued := task{
		jobID:  job.ID,
		voice:  voice,
		params: params,
		format: format,
	}

	select {
	case p.tasks <- queued:
		return job.ID, nil
	default:
		p.registry.Delete(job.ID)

		return "", core.ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Task failures
// never propagate past the job record; the pool survives them indefinitely.
func (p *Pool) Run(ctx context.Context) error {
	var waitGroup sync.WaitGroup

	for range p.workers {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case next := <-p.tasks:
					p.execute(ctx, next)
				}
			}
		}()
	}

	waitGroup.Wait()

	return nil
}

// execute runs one task to a terminal state and fires the notifiers.
func (p *Pool) execute(ctx context.Context, t task) {
	err := p.runTask(ctx, t)
	if err != nil {
		p.log.Error("Job %s failed: %v", t.jobID, err)

		updateErr := p.registry.Update(t.jobID, func(job *core.Job) {
			job.Status = core.StatusError
			job.Error = err.Error()
		})
		if updateErr != nil {
			// Job was purged mid-flight; nothing left to report.
			return
		}
	}

	p.notifyCompletion(t.jobID)
}

// runTask performs synthesis, encoding, and artifact persistence for one
// job. Any panic from the synthesis collaborator is captured as a failure.
func (p *Pool) runTask(ctx context.Context, t task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("synthesis panicked: %v\n%s", recovered, debug.Stack())
		}
	}()

	seed := ResolveSeed(t.params.Seed)
	t.params.Seed = seed

	err = p.registry.Update(t.jobID, func(job *core.Job) {
		job.Status = core.StatusRunning
		job.Seed = seed
	})
	if err != nil {
		return err
	}

	waveform, err := p.synth.Synthesize(ctx, t.voice, t.params)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	encoded, err := codec.Encode(waveform, t.format)
	if err != nil {
		return fmt.Errorf("encoding failed: %w", err)
	}

	mimeType, err := codec.MIMETypeFor(t.format)
	if err != nil {
		return err
	}

	name := p.store.NewName(t.voice.ID, t.format)

	path, err := p.store.Write(name, encoded)
	if err != nil {
		return fmt.Errorf("artifact write failed: %w", err)
	}

	now := time.Now()

	return p.registry.Update(t.jobID, func(job *core.Job) {
		job.Status = core.StatusDone
		job.ResultPath = path
		job.Filename = name
		job.MIMEType = mimeType
		job.LastAccess = now
	})
}

// notifyCompletion hands the terminal job to every notifier. Notifier
// failures are their own problem; the completion path never waits on
// delivery.
func (p *Pool) notifyCompletion(jobID string) {
	job, err := p.registry.Get(jobID)
	if err != nil {
		return
	}

	for _, notifier := range p.notifiers {
		notifier.JobCompleted(job)
	}
}

// ResolveSeed substitutes a fresh random seed for out-of-range values.
func ResolveSeed(seed int64) int64 {
	if seed < 0 || seed > maxSeed {
		return rand.Int64N(maxSeed + 1)
	}

	return seed
}
