package postprocess

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeBackend struct {
	out    string
	err    error
	prompt string
}

func (f *fakeBackend) Complete(ctx context.Context, prompt, text, model string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func TestRunNoneIsPassthrough(t *testing.T) {
	got, err := Run(context.Background(), nil, None, "um, hello there", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "um, hello there" {
		t.Errorf("expected passthrough text, got %q", got)
	}
}

func TestRunUsesDefaultPromptWhenEmpty(t *testing.T) {
	backend := &fakeBackend{out: "hello there"}
	backends := map[Processor]Backend{
		OpenAI: backend,
	}
	got, err := Run(context.Background(), backends, OpenAI, "um, hello there", "", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("expected cleaned text, got %q", got)
	}
	if backend.prompt != DefaultPrompt {
		t.Errorf("expected DefaultPrompt to be sent, got %q", backend.prompt)
	}
}

func TestRunFailureReturnsOriginalText(t *testing.T) {
	backends := map[Processor]Backend{
		Ollama: &fakeBackend{err: errors.New("connection refused")},
	}
	original := "um, hello there"
	got, err := Run(context.Background(), backends, Ollama, original, "", "llama3")
	if got != original {
		t.Errorf("expected original text preserved on failure, got %q", got)
	}
	if err == nil || !errors.Is(err, ErrPostProcessFailed) {
		t.Errorf("expected ErrPostProcessFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected underlying error message to be wrapped, got %q", err.Error())
	}
}

func TestRunMissingBackendReturnsOriginalText(t *testing.T) {
	original := "hello there"
	got, err := Run(context.Background(), map[Processor]Backend{}, Mistral, original, "", "")
	if got != original {
		t.Errorf("expected original text preserved, got %q", got)
	}
	if err == nil || !errors.Is(err, ErrPostProcessFailed) {
		t.Errorf("expected ErrPostProcessFailed, got %v", err)
	}
}
