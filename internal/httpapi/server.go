// Package httpapi exposes the synthesis service over HTTP: voice catalog,
// job submission and inspection, artifact download, server-sent status
// events, and a synchronous streaming endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/config"
	"github.com/espeech/synthd/internal/core"
	"github.com/espeech/synthd/internal/registry"
	"github.com/espeech/synthd/internal/scheduler"
	"github.com/espeech/synthd/internal/voices"
)

// HTTP headers and content types.
const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	headerCacheControl       = "Cache-Control"
	headerSeed               = "X-Seed"
	contentTypeJSON          = "application/json"
	contentTypeEventStream   = "text/event-stream"
)

// Server wires the HTTP surface to the service collaborators.
type Server struct {
	catalog  *voices.Catalog
	registry *registry.Registry
	pool     *scheduler.Pool
	synth    core.Synthesizer
	defaults config.SynthesisConfig
	apiBase  string
	log      *logger.Logger
}

// New creates the HTTP server surface.
func New(
	catalog *voices.Catalog,
	reg *registry.Registry,
	pool *scheduler.Pool,
	synth core.Synthesizer,
	defaults config.SynthesisConfig,
	apiBase string,
	log *logger.Logger,
) *Server {
	return &Server{
		catalog:  catalog,
		registry: reg,
		pool:     pool,
		synth:    synth,
		defaults: defaults,
		apiBase:  apiBase,
		log:      log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+s.apiBase+"/voices", s.handleListVoices)
	mux.HandleFunc("GET "+s.apiBase+"/voices/{id}/reference-audio", s.handleReferenceAudio)
	mux.HandleFunc("POST "+s.apiBase+"/synthesize", s.handleSynthesize)
	mux.HandleFunc("POST "+s.apiBase+"/synthesize/stream", s.handleSynthesizeStream)
	mux.HandleFunc("GET "+s.apiBase+"/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET "+s.apiBase+"/jobs/{id}/audio", s.handleJobAudio)
	mux.HandleFunc("HEAD "+s.apiBase+"/jobs/{id}/audio", s.handleJobAudio)
	mux.HandleFunc("GET "+s.apiBase+"/jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// voiceEntry is one row of the catalog listing.
type voiceEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// voicesResponse is the catalog listing payload.
type voicesResponse struct {
	Voices []voiceEntry `json:"voices"`
}

// handleListVoices returns the voice catalog. The refresh query parameter
// forces a directory rescan before listing.
func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		err := s.catalog.Refresh()
		if err != nil {
			s.log.Error("Failed to refresh voice catalog: %v", err)
			s.writeError(w, http.StatusInternalServerError, "failed to refresh voice catalog")

			return
		}
	}

	listed := s.catalog.List()

	entries := make([]voiceEntry, 0, len(listed))
	for _, voice := range listed {
		entries = append(entries, voiceEntry{ID: voice.ID, Name: voice.Name})
	}

	s.writeJSON(w, http.StatusOK, voicesResponse{Voices: entries})
}

// handleReferenceAudio serves a voice's reference sample for preview.
func (s *Server) handleReferenceAudio(w http.ResponseWriter, r *http.Request) {
	voice, err := s.catalog.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "voice not found")

		return
	}

	http.ServeFile(w, r, voice.RefAudioPath)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON serializes the payload with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Warn("Failed to write JSON response: %v", err)
	}
}

// writeError emits the uniform error body.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
