// Package elevenlabs implements the ElevenLabs batch transcription backend:
// a multipart upload against its published speech-to-text
// endpoint, one-shot upload and text out.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/jbarlow/vox/pkg/provider"
)

const (
	defaultEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"
	defaultModel    = "scribe_v1"
	defaultTimeout  = 300 * time.Second
)

// Backend implements provider.BatchBackend for ElevenLabs.
type Backend struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// New constructs a Backend with ElevenLabs' default endpoint and model.
func New() *Backend {
	return &Backend{Endpoint: defaultEndpoint, Model: defaultModel, Timeout: defaultTimeout}
}

type response struct {
	Text string `json:"text"`
}

// Transcribe implements provider.BatchBackend.
func (b *Backend) Transcribe(ctx context.Context, client *http.Client, credential string, req provider.Request) (provider.Result, error) {
	timeout := b.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: build multipart: %w", err)
	}
	if _, err := part.Write(req.AudioBytes); err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: write audio: %w", err)
	}
	model := b.Model
	if model == "" {
		model = defaultModel
	}
	if err := w.WriteField("model_id", model); err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: write model field: %w", err)
	}
	if req.Language != "" {
		if err := w.WriteField("language_code", req.Language); err != nil {
			return provider.Result{}, fmt.Errorf("elevenlabs: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: close multipart: %w", err)
	}

	endpoint := b.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if req.ProgressSink != nil {
		req.ProgressSink("upload began")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("xi-api-key", credential)

	if req.ProgressSink != nil {
		req.ProgressSink("awaiting response")
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Result{}, &provider.RemoteError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Result{}, &provider.DecodeError{Err: err}
	}
	return provider.Result{Text: parsed.Text}, nil
}
