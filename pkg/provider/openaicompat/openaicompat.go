// Package openaicompat implements the OpenAI-compatible batch transcription
// backend: multipart upload to /v1/audio/transcriptions. It covers
// OpenAI Whisper, Groq, and Mistral Voxtral, which all speak the same wire
// format, and any self-hosted server exposing it.
package openaicompat

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

const defaultTimeout = 300 * time.Second

// Option configures a Backend.
type Option func(*Backend)

// WithBaseURL overrides the default OpenAI endpoint, letting the same
// backend serve Groq/Mistral/self-hosted servers that mirror the wire
// format.
func WithBaseURL(url string) Option {
	return func(b *Backend) { b.baseURL = url }
}

// WithModel sets the model field sent in the multipart request.
func WithModel(model string) Option {
	return func(b *Backend) { b.model = model }
}

// WithTimeout overrides the default 300s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) { b.timeout = d }
}

// Backend implements provider.BatchBackend for OpenAI-compatible servers.
type Backend struct {
	baseURL string
	model   string
	timeout time.Duration
}

// New constructs a Backend defaulting to the public OpenAI endpoint and the
// "whisper-1" model.
func New(opts ...Option) *Backend {
	b := &Backend{
		baseURL: "https://api.openai.com/v1",
		model:   "whisper-1",
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements provider.BatchBackend.
func (b *Backend) Transcribe(ctx context.Context, client *http.Client, credential string, req provider.Request) (provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: build multipart: %w", err)
	}
	if _, err := part.Write(req.AudioBytes); err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: write audio: %w", err)
	}
	if err := w.WriteField("model", b.model); err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: write model field: %w", err)
	}
	if req.Language != "" {
		if err := w.WriteField("language", req.Language); err != nil {
			return provider.Result{}, fmt.Errorf("openaicompat: write language field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: close multipart: %w", err)
	}

	if req.ProgressSink != nil {
		req.ProgressSink("upload began")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+credential)

	if req.ProgressSink != nil {
		req.ProgressSink("awaiting response")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("openaicompat: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Result{}, &provider.RemoteError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return provider.Result{}, &provider.DecodeError{Err: err}
	}

	return provider.Result{Text: parsed.Text}, nil
}
