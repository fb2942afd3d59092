package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/espeech/synthd/internal/core"
)

// ssePollInterval is how often the event stream re-reads the job record.
const ssePollInterval = time.Second

// jobStatusResponse is the job inspection payload. AudioURL is present only
// while the artifact is downloadable; Seed is present once the scheduler has
// resolved it.
type jobStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Seed     *int64 `json:"seed,omitempty"`
}

// handleJobStatus reports the job's current state. Reading the status counts
// as access and extends the artifact's retention window.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := s.registry.Get(jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")

		return
	}

	s.registry.Touch(jobID)

	s.writeJSON(w, http.StatusOK, s.statusPayload(job))
}

// handleJobAudio serves the finished artifact. The handler distinguishes an
// unknown job (404), a job still in flight (409), and an artifact that was
// evicted or never produced (410). A failed job falls under 410: its audio
// never existed.
func (s *Server) handleJobAudio(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := s.registry.Get(jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")

		return
	}

	switch {
	case !job.Status.Terminal():
		s.writeError(w, http.StatusConflict, core.ErrJobNotDone.Error())

		return
	case !job.Downloadable():
		s.writeError(w, http.StatusGone, core.ErrArtifactGone.Error())

		return
	}

	s.registry.Touch(jobID)

	w.Header().Set(headerContentType, job.MIMEType)
	w.Header().Set(headerContentDisposition,
		fmt.Sprintf("attachment; filename=%q", job.Filename))

	http.ServeFile(w, r, job.ResultPath)
}

// handleJobEvents streams job status changes as server-sent events. The
// current state is emitted immediately, then once per change, and the stream
// ends when the job reaches a terminal state, disappears, or the client
// disconnects.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := s.registry.Get(jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")

		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")

		return
	}

	w.Header().Set(headerContentType, contentTypeEventStream)
	w.Header().Set(headerCacheControl, "no-cache")
	w.WriteHeader(http.StatusOK)

	s.emitStatusEvent(w, flusher, job)

	if job.Status.Terminal() {
		return
	}

	lastStatus := job.Status

	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		job, err = s.registry.Get(jobID)
		if err != nil {
			s.emitNotFoundEvent(w, flusher)

			return
		}

		if job.Status == lastStatus {
			continue
		}

		lastStatus = job.Status

		s.emitStatusEvent(w, flusher, job)

		if job.Status.Terminal() {
			return
		}
	}
}

// emitStatusEvent writes one named SSE frame carrying the job status payload.
func (s *Server) emitStatusEvent(w http.ResponseWriter, flusher http.Flusher, job core.Job) {
	data, err := json.Marshal(s.statusPayload(job))
	if err != nil {
		return
	}

	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	if err != nil {
		return
	}

	flusher.Flush()
}

// emitNotFoundEvent closes the stream for a job that disappeared while the
// client was subscribed, so the client can tell eviction from a dropped
// connection.
func (s *Server) emitNotFoundEvent(w http.ResponseWriter, flusher http.Flusher) {
	_, err := fmt.Fprint(w, "event: not_found\ndata: {\"error\": \"not_found\"}\n\n")
	if err != nil {
		return
	}

	flusher.Flush()
}

// statusPayload builds the external view of a job record.
func (s *Server) statusPayload(job core.Job) jobStatusResponse {
	payload := jobStatusResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Error:    job.Error,
		AudioURL: "",
		Filename: job.Filename,
		MIMEType: job.MIMEType,
		Seed:     nil,
	}

	if job.Downloadable() {
		payload.AudioURL = fmt.Sprintf("%s/jobs/%s/audio", s.apiBase, job.ID)
	}

	if job.Status != core.StatusQueued {
		seed := job.Seed
		payload.Seed = &seed
	}

	return payload
}
