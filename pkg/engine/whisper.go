//go:build cgo && whisper_go

package engine

import (
	"fmt"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperEngine wraps the whisper.cpp Go bindings as an Engine. Whisper does
// its own internal chunking, so no pre-chunking is applied here.
type WhisperEngine struct {
	model    whisper.Model
	language string
}

// WhisperLoader constructs a Loader for the Whisper engine kind.
func WhisperLoader(language string) Loader {
	return func(path string) (Engine, error) {
		model, err := whisper.New(path)
		if err != nil {
			return nil, fmt.Errorf("whisper: load model %s: %w", path, err)
		}
		return &WhisperEngine{model: model, language: language}, nil
	}
}

// Transcribe implements Engine.
func (w *WhisperEngine) Transcribe(samples []float32) (string, error) {
	ctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if w.language != "" {
		_ = ctx.SetLanguage(w.language)
	}
	ctx.SetSplitOnWord(true)

	if err := ctx.Process(samples, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var b strings.Builder
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}
		b.WriteString(seg.Text)
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String()), nil
}

// Close implements Engine.
func (w *WhisperEngine) Close() error {
	return w.model.Close()
}

var _ Engine = (*WhisperEngine)(nil)
