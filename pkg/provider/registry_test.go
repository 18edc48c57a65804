package provider

import (
	"context"
	"net/http"
	"testing"
)

type dualBackend struct{}

func (dualBackend) Transcribe(ctx context.Context, client *http.Client, credential string, req Request) (Result, error) {
	return Result{Text: "batch"}, nil
}

func (dualBackend) TranscribeStream(ctx context.Context, credential string, samples <-chan []float32, language string) (string, error) {
	return "stream", nil
}
func (dualBackend) SampleRate() int         { return 16000 }
func (dualBackend) RequiresKeepalive() bool { return true }

type streamOnlyBackend struct{}

func (streamOnlyBackend) TranscribeStream(ctx context.Context, credential string, samples <-chan []float32, language string) (string, error) {
	return "", nil
}
func (streamOnlyBackend) SampleRate() int         { return 16000 }
func (streamOnlyBackend) RequiresKeepalive() bool { return false }

func TestRegisterStreamingInstallsBatchFallback(t *testing.T) {
	r := NewRegistry()
	r.RegisterStreaming(DeepgramRealtime, dualBackend{})

	if _, err := r.Streaming(DeepgramRealtime); err != nil {
		t.Fatalf("Streaming: %v", err)
	}
	b, err := r.Batch(DeepgramRealtime)
	if err != nil {
		t.Fatalf("a dual backend should serve batch lookups too: %v", err)
	}
	result, err := b.Transcribe(context.Background(), nil, "", Request{})
	if err != nil || result.Text != "batch" {
		t.Errorf("fallback batch call = (%q, %v)", result.Text, err)
	}
}

func TestRegisterStreamingDoesNotOverrideExplicitBatch(t *testing.T) {
	r := NewRegistry()

	explicit := dualBackend{}
	r.RegisterBatch(OpenAIRealtime, explicit)
	r.RegisterStreaming(OpenAIRealtime, streamOnlyBackend{})

	if _, err := r.Batch(OpenAIRealtime); err != nil {
		t.Fatalf("explicit batch registration lost: %v", err)
	}
}

func TestRegistryLookupMissReportsKind(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Batch(ElevenLabs); err == nil {
		t.Fatal("expected an error for an unregistered kind")
	}
	if _, err := r.Streaming(OpenAI); err == nil {
		t.Fatal("expected an error for a kind with no streaming backend")
	}
}
