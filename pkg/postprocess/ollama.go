package postprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaDefaultBaseURL is the default base URL for a locally running Ollama
// instance.
const OllamaDefaultBaseURL = "http://localhost:11434"

// OllamaBackend completes post-processing prompts through a local Ollama
// server's native /api/chat endpoint. Ollama's Go surface is the server
// itself, not a thin client SDK, so this talks HTTP+JSON directly rather
// than importing the project.
type OllamaBackend struct {
	baseURL      string
	defaultModel string
	keepAlive    string
	httpClient   *http.Client
}

// NewOllamaBackend constructs an OllamaBackend. An empty baseURL uses
// OllamaDefaultBaseURL. keepAlive is passed through on every request so the
// server retains the model for that long after each call ("5m" style).
func NewOllamaBackend(baseURL, defaultModel, keepAlive string) *OllamaBackend {
	if baseURL == "" {
		baseURL = OllamaDefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &OllamaBackend{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		keepAlive:    keepAlive,
		httpClient:   &http.Client{},
	}
}

// KeepAlive reports how long the server keeps the model resident after a
// call, or zero if unset or unparseable.
func (b *OllamaBackend) KeepAlive() time.Duration {
	d, err := time.ParseDuration(b.keepAlive)
	if err != nil {
		return 0
	}
	return d
}

// Warm asks the server to load the model into memory without generating
// anything: a chat request with no messages. Useful right before a real
// call when the model has likely aged out of its keep-alive window.
func (b *OllamaBackend) Warm(ctx context.Context, model string) error {
	if model == "" {
		model = b.defaultModel
	}
	reqBody, err := json.Marshal(ollamaChatRequest{Model: model, KeepAlive: b.keepAlive})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postprocess/ollama: could not reach Ollama at %s (%w) -- is `ollama serve` running?", b.baseURL, err)
	}
	resp.Body.Close()
	return nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model     string              `json:"model"`
	Messages  []ollamaChatMessage `json:"messages"`
	Stream    bool                `json:"stream"`
	KeepAlive string              `json:"keep_alive,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

// Complete implements Backend.
func (b *OllamaBackend) Complete(ctx context.Context, prompt, text, model string) (string, error) {
	if model == "" {
		model = b.defaultModel
	}

	reqBody, err := json.Marshal(ollamaChatRequest{
		Model: model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: text},
		},
		Stream:    false,
		KeepAlive: b.keepAlive,
	})
	if err != nil {
		return "", fmt.Errorf("postprocess/ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("postprocess/ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("postprocess/ollama: could not reach Ollama at %s (%w) -- is `ollama serve` running?", b.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("postprocess/ollama: unexpected status %d", resp.StatusCode)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("postprocess/ollama: decode response: %w", err)
	}
	return result.Message.Content, nil
}

var _ Backend = (*OllamaBackend)(nil)
