package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jbarlow/vox/config"
	"github.com/jbarlow/vox/pkg/engine"
	"github.com/jbarlow/vox/pkg/provider"
)

// fakeStreamingBackend drains the sample channel and returns a canned
// transcript, recording what it consumed so tests can assert frame
// delivery.
type fakeStreamingBackend struct {
	mu           sync.Mutex
	text         string
	err          error
	totalSamples int
	language     string
}

func (f *fakeStreamingBackend) TranscribeStream(ctx context.Context, credential string, samples <-chan []float32, language string) (string, error) {
	f.mu.Lock()
	f.language = language
	f.mu.Unlock()
	for chunk := range samples {
		f.mu.Lock()
		f.totalSamples += len(chunk)
		f.mu.Unlock()
	}
	return f.text, f.err
}

func (f *fakeStreamingBackend) SampleRate() int         { return 16000 }
func (f *fakeStreamingBackend) RequiresKeepalive() bool { return false }

func newRealtimeOrchestrator(backend *fakeStreamingBackend, frames [][]float32, onEvent EventSink) (*Orchestrator, *fakeRecorder, *config.Settings) {
	recorder := newFakeRecorder(frames...)

	registry := provider.NewRegistry()
	registry.RegisterStreaming(provider.DeepgramRealtime, backend)

	settings := config.Default()
	settings.Provider = provider.DeepgramRealtime
	settings.Credentials[provider.DeepgramRealtime] = "dg-key"

	o := New(Config{
		Registry:  registry,
		Engines:   engine.NewCache(),
		Clipboard: &captureClipboard{},
		RecorderFactory: func(device string, vadEnabled bool, threshold float32) (Recorder, error) {
			if vadEnabled {
				panic("VAD must be forced off for realtime providers")
			}
			return recorder, nil
		},
		Settings: func() config.Settings { return settings },
		OnEvent:  onEvent,
	})
	return o, recorder, &settings
}

func TestOrchestratorRealtimeBranchDeliversFramesAndResult(t *testing.T) {
	backend := &fakeStreamingBackend{text: "streamed words"}
	var events []Event
	o, _, settings := newRealtimeOrchestrator(backend,
		[][]float32{make([]float32, 512), make([]float32, 512)},
		func(e Event) { events = append(events, e) })
	settings.Language = "en"
	settings.VAD.Enabled = true // must be overridden off by the realtime branch

	if err := o.Start(context.Background(), nil, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Stop(context.Background())

	if o.State() != Idle {
		t.Fatalf("state = %v, want Idle", o.State())
	}
	if backend.totalSamples != 1024 {
		t.Errorf("backend consumed %d samples, want 1024", backend.totalSamples)
	}
	if backend.language != "en" {
		t.Errorf("language hint = %q, want en", backend.language)
	}

	var finalText string
	for _, e := range events {
		if tc, ok := e.(TranscriptionComplete); ok {
			finalText = tc.Text
		}
	}
	if finalText != "streamed words" {
		t.Errorf("final text = %q", finalText)
	}
}

func TestOrchestratorRealtimeErrorIsTerminal(t *testing.T) {
	backend := &fakeStreamingBackend{err: errors.New("socket reset")}
	var events []Event
	o, _, _ := newRealtimeOrchestrator(backend, nil, func(e Event) { events = append(events, e) })

	if err := o.Start(context.Background(), nil, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Stop(context.Background())

	if o.State() != Idle {
		t.Fatalf("state = %v, want Idle after error", o.State())
	}
	var sawError, sawComplete bool
	for _, e := range events {
		switch e.(type) {
		case TranscriptionError:
			sawError = true
		case TranscriptionComplete:
			sawComplete = true
		}
	}
	if !sawError {
		t.Error("expected a TranscriptionError event")
	}
	if sawComplete {
		t.Error("no TranscriptionComplete should follow a terminal error")
	}
}

func TestOrchestratorStateTransitionsAreEmitted(t *testing.T) {
	backend := &fakeStreamingBackend{text: "x"}
	var states []RecordingState
	o, _, _ := newRealtimeOrchestrator(backend, nil, func(e Event) {
		if sc, ok := e.(RecordingStateChanged); ok {
			states = append(states, sc.State)
		}
	})

	if err := o.Start(context.Background(), nil, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	o.Stop(context.Background())

	want := []RecordingState{Recording, Transcribing, Idle}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}
