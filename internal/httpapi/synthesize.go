package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/espeech/synthd/internal/codec"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/scheduler"
)

// Parameter bounds for synthesis requests.
const (
	minSpeed   = 0.5
	maxSpeed   = 2.0
	minNFEStep = 8
	maxNFEStep = 128
)

// synthesizeRequest is the submission payload. Pointer fields distinguish
// "omitted, use the default" from an explicit zero; seed zero in particular
// is a legal deterministic seed.
type synthesizeRequest struct {
	Text         string   `json:"text"`
	Voice        string   `json:"voice"`
	Speed        *float64 `json:"speed"`
	NFEStep      *int     `json:"nfe_step"`
	Seed         *int64   `json:"seed"`
	Format       string   `json:"format"`
	CallbackURL  string   `json:"callback_url"`
	ChunkSamples int      `json:"chunk_samples"`
}

// submitResponse acknowledges an accepted submission.
type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// parsedRequest is a validated submission.
type parsedRequest struct {
	voice        core.Voice
	params       core.SynthesisParams
	format       string
	callbackURL  string
	chunkSamples int
}

// handleSynthesize validates the request and enqueues an asynchronous job.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.parseSynthesizeRequest(w, r)
	if !ok {
		return
	}

	jobID, err := s.pool.Submit(parsed.voice, parsed.params, parsed.format, parsed.callbackURL)
	if err != nil {
		if errors.Is(err, core.ErrQueueFull) {
			s.writeError(w, http.StatusServiceUnavailable, "server is busy, try again later")

			return
		}

		s.log.Error("Failed to submit job: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")

		return
	}

	s.writeJSON(w, http.StatusOK, submitResponse{
		JobID:  jobID,
		Status: string(core.StatusQueued),
	})
}

// handleSynthesizeStream synthesizes in-line and streams encoded chunks as
// they are produced. The connection stays open for the full inference
// duration; the seed actually used is surfaced in a response header before
// the first chunk.
func (s *Server) handleSynthesizeStream(w http.ResponseWriter, r *http.Request) {
	parsed, ok := s.parseSynthesizeRequest(w, r)
	if !ok {
		return
	}

	parsed.params.Seed = scheduler.ResolveSeed(parsed.params.Seed)

	waveform, err := s.synth.Synthesize(r.Context(), parsed.voice, parsed.params)
	if err != nil {
		s.log.Error("Streaming synthesis failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("synthesis failed: %v", err))

		return
	}

	mimeType, err := codec.MIMETypeFor(parsed.format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	w.Header().Set(headerContentType, mimeType)
	w.Header().Set(headerContentDisposition, fmt.Sprintf(
		"attachment; filename=%q",
		fmt.Sprintf("%s_stream.%s", parsed.voice.ID, parsed.format),
	))
	w.Header().Set(headerSeed, strconv.FormatInt(parsed.params.Seed, 10))

	flusher, _ := w.(http.Flusher)

	err = codec.Stream(waveform, parsed.format, parsed.chunkSamples, func(chunk []byte) error {
		_, writeErr := w.Write(chunk)
		if writeErr != nil {
			return writeErr
		}

		if flusher != nil {
			flusher.Flush()
		}

		return nil
	})
	if err != nil {
		// Headers are gone; all we can do is drop the connection.
		s.log.Warn("Streaming response aborted: %v", err)
	}
}

// parseSynthesizeRequest decodes, defaults, and validates a submission. On
// failure it writes the error response and returns ok false.
func (s *Server) parseSynthesizeRequest(
	w http.ResponseWriter, r *http.Request,
) (parsedRequest, bool) {
	var req synthesizeRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")

		return parsedRequest{}, false
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "text cannot be empty")

		return parsedRequest{}, false
	}

	voice, err := s.catalog.Get(req.Voice)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("voice not found: %q", req.Voice))

		return parsedRequest{}, false
	}

	parsed := parsedRequest{
		voice: voice,
		params: core.SynthesisParams{
			Text:    req.Text,
			Speed:   s.defaults.DefaultSpeed,
			NFEStep: s.defaults.DefaultNFEStep,
			Seed:    s.defaults.DefaultSeed,
		},
		format:       s.defaults.DefaultFormat,
		callbackURL:  req.CallbackURL,
		chunkSamples: req.ChunkSamples,
	}

	if req.Speed != nil {
		parsed.params.Speed = *req.Speed
	}

	if req.NFEStep != nil {
		parsed.params.NFEStep = *req.NFEStep
	}

	if req.Seed != nil {
		parsed.params.Seed = *req.Seed
	}

	if req.Format != "" {
		parsed.format = req.Format
	}

	return parsed, s.validateParams(w, &parsed)
}

// validateParams enforces the documented parameter bounds.
func (s *Server) validateParams(w http.ResponseWriter, parsed *parsedRequest) bool {
	if parsed.params.Speed < minSpeed || parsed.params.Speed > maxSpeed {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("speed must be between %.1f and %.1f", minSpeed, maxSpeed))

		return false
	}

	if parsed.params.NFEStep < minNFEStep || parsed.params.NFEStep > maxNFEStep {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("nfe_step must be between %d and %d", minNFEStep, maxNFEStep))

		return false
	}

	if parsed.format != codec.FormatWAV && parsed.format != codec.FormatMP3 {
		s.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("format must be %q or %q", codec.FormatWAV, codec.FormatMP3))

		return false
	}

	if parsed.chunkSamples <= 0 {
		parsed.chunkSamples = defaultChunkSamples(parsed.format)
	}

	return true
}

// defaultChunkSamples picks the per-format streaming chunk size.
func defaultChunkSamples(format string) int {
	if format == codec.FormatMP3 {
		return codec.DefaultMP3ChunkSamples
	}

	return codec.DefaultWAVChunkSamples
}
