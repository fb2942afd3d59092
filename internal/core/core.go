// Package core defines the shared domain types, interfaces, and error
// taxonomy for the synthesis job service.
package core

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/espeech/synthd/internal/codec"
)

// Service-level errors. HTTP handlers map these to status codes; everything
// else wraps them with context via fmt.Errorf and %w.
var (
	// ErrJobNotFound indicates an unknown job identifier.
	ErrJobNotFound = errors.New("job not found")
	// ErrVoiceNotFound indicates an unknown voice identifier.
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrJobNotDone indicates the artifact was requested before the job completed.
	ErrJobNotDone = errors.New("job not completed yet")
	// ErrArtifactGone indicates the artifact was evicted or never produced.
	ErrArtifactGone = errors.New("generated audio has expired")
	// ErrQueueFull indicates the scheduler rejected the submission.
	ErrQueueFull = errors.New("submission queue is full")
)

// Status is the lifecycle state of a job. Legal transitions are
// queued -> running -> done|error; done and error are terminal.
type Status string

// Job lifecycle states.
const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is one tracked synthesis request.
//
// ResultPath is non-empty only in state done, and is owned by the job until
// the cleanup sweeper evicts it. LastAccess is bumped on completion and on
// every read, and drives TTL eviction.
type Job struct {
	ID          string
	Status      Status
	Error       string
	ResultPath  string
	MIMEType    string
	Filename    string
	Seed        int64
	LastAccess  time.Time
	CallbackURL string
}

// Downloadable reports whether the job has a retrievable artifact on disk.
func (j *Job) Downloadable() bool {
	if j.Status != StatusDone || j.ResultPath == "" {
		return false
	}

	_, err := os.Stat(j.ResultPath)

	return err == nil
}

// Voice is one entry of the voice catalog: a reference text plus a reference
// audio sample used to condition the synthesis model.
type Voice struct {
	ID           string
	Name         string
	Dir          string
	RefTextPath  string
	RefAudioPath string
}

// RefText reads the voice's reference transcription.
func (v Voice) RefText() (string, error) {
	data, err := os.ReadFile(v.RefTextPath)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(data)), nil
}

// SynthesisParams are the per-request knobs passed to the synthesis engine.
type SynthesisParams struct {
	Text    string
	Speed   float64
	NFEStep int
	Seed    int64
}

// Synthesizer is the opaque synthesis collaborator. Implementations block
// for the full duration of inference; the scheduler bounds how many calls
// run concurrently.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice Voice, params SynthesisParams) (codec.Waveform, error)
}

// Notifier receives jobs that reached a terminal state. Implementations must
// never block the caller for long and must swallow their own failures.
type Notifier interface {
	JobCompleted(job Job)
}
