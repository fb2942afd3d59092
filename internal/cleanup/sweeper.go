// Package cleanup reclaims disk space from expired artifacts. A periodic
// sweep evicts done jobs whose retention window has lapsed, then collects
// orphan files that no tracked job references. Sweep failures are counted,
// never raised.
package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/artifact"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/registry"
)

// Defaults for the sweep cycle. The warmup delay lets the service finish
// starting before the first sweep touches the artifact directory.
const (
	DefaultRetention = time.Hour
	DefaultInterval  = 5 * time.Minute
	warmupDelay      = 2 * time.Second
)

// Sweeper is the periodic eviction loop.
type Sweeper struct {
	registry  *registry.Registry
	store     *artifact.Store
	retention time.Duration
	interval  time.Duration
	log       *logger.Logger
}

// New creates a sweeper. Non-positive retention or interval fall back to
// the defaults.
func New(
	reg *registry.Registry,
	store *artifact.Store,
	retention, interval time.Duration,
	log *logger.Logger,
) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Sweeper{
		registry:  reg,
		store:     store,
		retention: retention,
		interval:  interval,
		log:       log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(warmupDelay):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		deleted := s.Sweep(time.Now())
		if deleted > 0 {
			s.log.Info("Cleanup sweep removed %d expired file(s)", deleted)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs one eviction cycle and returns the number of files deleted.
func (s *Sweeper) Sweep(now time.Time) int {
	return s.evictExpiredJobs(now) + s.collectOrphans(now)
}

// evictExpiredJobs deletes artifacts of done jobs past the retention window
// and clears the jobs' artifact fields. The record itself persists with
// status done. Jobs still queued or running are never evicted.
func (s *Sweeper) evictExpiredJobs(now time.Time) int {
	deleted := 0

	for _, job := range s.registry.Snapshot() {
		if job.Status != core.StatusDone || job.ResultPath == "" {
			continue
		}

		if !s.store.Exists(job.ResultPath) {
			continue
		}

		if now.Sub(s.effectiveLastAccess(job)) < s.retention {
			continue
		}

		err := s.store.Remove(job.ResultPath)
		if err != nil {
			s.log.Warn("Failed to remove expired artifact %s: %v", job.ResultPath, err)
		} else {
			deleted++
		}

		s.registry.MarkEvicted(job.ID)
	}

	return deleted
}

// collectOrphans deletes files in the artifact directory that no tracked
// job references and whose age exceeds the retention window. This guards
// against crashes or bugs that leave files behind.
func (s *Sweeper) collectOrphans(now time.Time) int {
	entries, err := s.store.List()
	if err != nil {
		s.log.Warn("Failed to list artifact directory: %v", err)

		return 0
	}

	deleted := 0

	for _, entry := range entries {
		if now.Sub(entry.ModTime) < s.retention {
			continue
		}

		if s.registry.IsTracked(entry.Path) {
			continue
		}

		removeErr := s.store.Remove(entry.Path)
		if removeErr != nil {
			s.log.Warn("Failed to remove orphan file %s: %v", entry.Path, removeErr)

			continue
		}

		deleted++
	}

	return deleted
}

// effectiveLastAccess is the job's last-access timestamp, falling back to
// the artifact's on-disk modification time when the job was never touched.
func (s *Sweeper) effectiveLastAccess(job core.Job) time.Time {
	if !job.LastAccess.IsZero() {
		return job.LastAccess
	}

	info, err := os.Stat(job.ResultPath)
	if err != nil {
		return time.Time{}
	}

	return info.ModTime()
}
