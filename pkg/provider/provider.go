package provider

import (
	"context"
	"fmt"
	"net/http"
)

// Request is one complete audio payload for a batch backend.
type Request struct {
	AudioBytes   []byte
	MimeType     string
	Filename     string
	Language     string // "" = unspecified
	ProgressSink func(stage string)
}

// Result is a batch backend's response: the contract carries no
// timestamps, only final text.
type Result struct {
	Text string
}

// BatchBackend is a transcription provider that consumes one complete audio
// payload and returns one text response.
type BatchBackend interface {
	Transcribe(ctx context.Context, client *http.Client, credential string, req Request) (Result, error)
}

// StreamingBackend is a provider consumed over a persistent connection; it
// reads 16 kHz mono samples from the channel until it closes and returns the
// space-joined final transcript.
type StreamingBackend interface {
	TranscribeStream(ctx context.Context, credential string, samples <-chan []float32, language string) (string, error)
	SampleRate() int
	RequiresKeepalive() bool
}

// Registry maps a Kind to its backend instance(s).
type Registry struct {
	batch     map[Kind]BatchBackend
	streaming map[Kind]StreamingBackend
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		batch:     make(map[Kind]BatchBackend),
		streaming: make(map[Kind]StreamingBackend),
	}
}

// RegisterBatch wires a batch backend for a kind.
func (r *Registry) RegisterBatch(k Kind, b BatchBackend) { r.batch[k] = b }

// RegisterStreaming wires a streaming backend for a kind. If b also
// implements BatchBackend, it is used as that kind's batch fallback too
// (realtime kinds may delegate file-based transcription to a sibling
// REST backend).
func (r *Registry) RegisterStreaming(k Kind, b StreamingBackend) {
	r.streaming[k] = b
	if batch, ok := b.(BatchBackend); ok {
		if _, exists := r.batch[k]; !exists {
			r.batch[k] = batch
		}
	}
}

// Batch looks up the batch backend for a kind.
func (r *Registry) Batch(k Kind) (BatchBackend, error) {
	b, ok := r.batch[k]
	if !ok {
		return nil, fmt.Errorf("provider: no batch backend registered for %s", k.AsStr())
	}
	return b, nil
}

// Streaming looks up the streaming backend for a kind.
func (r *Registry) Streaming(k Kind) (StreamingBackend, error) {
	s, ok := r.streaming[k]
	if !ok {
		return nil, fmt.Errorf("provider: no streaming backend registered for %s", k.AsStr())
	}
	return s, nil
}
