// Package postprocess implements the post-processing stage: an
// optional chat-completion call that rewrites a transcript per a prompt
// template. Failures are never fatal to the overall operation.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Processor selects the chat backend that rewrites a transcript.
type Processor int

const (
	None Processor = iota
	OpenAI
	Mistral
	Ollama
)

// DefaultPrompt is used when no preset supplies one.
const DefaultPrompt = "Clean up this voice transcript. Remove filler words (um, uh, like, you know). " +
	"Fix grammar and punctuation. Keep technical terms intact. Output only the cleaned text, no explanations."

// ErrPostProcessFailed wraps any failure from a concrete backend; callers
// must treat it as non-fatal and return the original transcript.
var ErrPostProcessFailed = errors.New("postprocess: failed")

// Backend performs one chat-completion rewrite call.
type Backend interface {
	Complete(ctx context.Context, prompt, text, model string) (string, error)
}

// Warmer is implemented by backends whose model can age out of server
// memory between calls and benefit from an explicit load request.
type Warmer interface {
	Warm(ctx context.Context, model string) error
	KeepAlive() time.Duration
}

// Run applies processor to text using prompt (falling back to DefaultPrompt
// if empty) and the given model override. On any backend error it returns
// the original text unchanged alongside a non-nil error wrapping
// ErrPostProcessFailed, so callers can emit a post-process-warning event
// without failing the overall operation.
func Run(ctx context.Context, backends map[Processor]Backend, processor Processor, text, prompt, model string) (string, error) {
	if processor == None {
		return text, nil
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	backend, ok := backends[processor]
	if !ok {
		return text, fmt.Errorf("%w: no backend registered for processor %d", ErrPostProcessFailed, processor)
	}

	cleaned, err := backend.Complete(ctx, prompt, text, model)
	if err != nil {
		return text, fmt.Errorf("%w: %v", ErrPostProcessFailed, err)
	}
	return cleaned, nil
}
