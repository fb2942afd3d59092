// Package engine adapts a standalone inference sidecar into the
// core.Synthesizer interface. The sidecar owns the model and the GPU; this
// adapter only moves requests and decoded waveforms across the boundary.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/espeech/synthd/internal/codec"
	"github.com/espeech/synthd/internal/core"
)

// API endpoints of the inference sidecar.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Static errors.
var (
	ErrTextEmpty          = errors.New("text cannot be empty")
	ErrEmptyAudioResponse = errors.New("received empty audio data")
)

// synthesizeRequest is the JSON payload sent to the sidecar.
type synthesizeRequest struct {
	Text         string  `json:"text"`
	RefAudioPath string  `json:"ref_audio_path"`
	RefText      string  `json:"ref_text"`
	Speed        float64 `json:"speed"`
	NFEStep      int     `json:"nfe_step"`
	Seed         int64   `json:"seed"`
}

// errorResponse is the sidecar's structured error body.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// HTTPEngine is the HTTP implementation of core.Synthesizer.
type HTTPEngine struct {
	client  *http.Client
	baseURL string
	log     *logger.Logger
}

// New creates an engine client. The baseURL includes protocol and port; the
// timeout bounds every request, covering the full inference duration.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPEngine {
	return &HTTPEngine{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		log:     log,
	}
}

// Synthesize sends one synthesis request and decodes the returned WAV bytes
// into the waveform the codec layer consumes. The call blocks for the full
// duration of inference.
func (e *HTTPEngine) Synthesize(
	ctx context.Context, voice core.Voice, params core.SynthesisParams,
) (codec.Waveform, error) {
	if params.Text == "" {
		return codec.Waveform{}, ErrTextEmpty
	}

	refText, err := voice.RefText()
	if err != nil {
		return codec.Waveform{}, fmt.Errorf("failed to read reference text for voice %s: %w", voice.ID, err)
	}

	audioData, err := e.requestAudio(ctx, synthesizeRequest{
		Text:         params.Text,
		RefAudioPath: voice.RefAudioPath,
		RefText:      refText,
		Speed:        params.Speed,
		NFEStep:      params.NFEStep,
		Seed:         params.Seed,
	})
	if err != nil {
		return codec.Waveform{}, err
	}

	waveform, err := codec.DecodeWAV(audioData)
	if err != nil {
		return codec.Waveform{}, fmt.Errorf("failed to decode engine audio: %w", err)
	}

	return waveform, nil
}

// requestAudio performs the POST and returns the raw WAV response body.
func (e *HTTPEngine) requestAudio(ctx context.Context, payload synthesizeRequest) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.baseURL+apiSynthesize, bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, codec.MIMETypeWAV)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach synthesis engine at %s: %w", e.baseURL, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseErrorResponse(resp)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudioResponse
	}

	return audioData, nil
}

// HealthCheck verifies the sidecar is reachable and reports healthy.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("engine health check failed for %s: %w", e.baseURL, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes the sidecar's structured error, falling back
// to the raw body so diagnostics are never lost.
func (e *HTTPEngine) parseErrorResponse(resp *http.Response) error {
	var structured errorResponse

	err := json.NewDecoder(resp.Body).Decode(&structured)
	if err == nil && structured.Detail != "" {
		return fmt.Errorf("engine error (%s): %s (code: %s)",
			resp.Status, structured.Detail, structured.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("engine returned %s: %s", resp.Status, string(body))
}
