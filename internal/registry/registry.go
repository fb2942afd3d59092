// Package registry holds the in-memory job table. Records live only for the
// process lifetime; all access goes through one mutual-exclusion domain, so
// no reader ever observes a partially updated record.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/espeech/synthd/internal/core"
	"github.com/google/uuid"
)

// Registry is a thread-safe table of jobs keyed by identifier.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*core.Job
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		mu:   sync.Mutex{},
		jobs: map[string]*core.Job{},
	}
}

// Create inserts a new queued job with a fresh identifier and returns a copy
// of the record. Identifiers are never reused.
func (r *Registry) Create(callbackURL string) core.Job {
	job := &core.Job{
		ID:          uuid.NewString(),
		Status:      core.StatusQueued,
		Error:       "",
		ResultPath:  "",
		MIMEType:    "",
		Filename:    "",
		Seed:        0,
		LastAccess:  time.Time{},
		CallbackURL: callbackURL,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	return *job
}

// Get returns a copy of the job with the given identifier.
func (r *Registry) Get(id string) (core.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return core.Job{}, fmt.Errorf("%w: %q", core.ErrJobNotFound, id)
	}

	return *job, nil
}

// Update applies the mutator to the job atomically.
func (r *Registry) Update(id string, mutate func(*core.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrJobNotFound, id)
	}

	mutate(job)

	return nil
}

// Delete removes the job record entirely. Used when a submission is rejected
// after the record was created.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

// Touch bumps the job's last-access timestamp, extending its TTL. When the
// job owns an on-disk artifact, the file's access and modification times are
// re-stamped too, so filesystem-level signals stay consistent with the
// in-memory state. Unknown jobs and re-timing failures are ignored.
func (r *Registry) Touch(id string) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}

	job.LastAccess = now

	if job.ResultPath != "" {
		_ = os.Chtimes(job.ResultPath, now, now)
	}
}

// MarkEvicted clears the job's artifact fields after the sweeper removed the
// file. The record itself persists with status done.
func (r *Registry) MarkEvicted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return
	}

	job.ResultPath = ""
	job.Filename = ""
	job.MIMEType = ""
}

// Snapshot returns a copy of every job record. The copy is safe to iterate
// while other callers mutate the table.
func (r *Registry) Snapshot() []core.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}

	return out
}

// IsTracked reports whether any live job owns the given artifact path.
func (r *Registry) IsTracked(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.ResultPath != "" && job.ResultPath == path {
			return true
		}
	}

	return false
}
