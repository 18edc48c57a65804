package engine

import (
	"errors"
	"sync/atomic"
	"testing"
)

type fakeEngine struct {
	closes *atomic.Int32
	text   string
}

func (f *fakeEngine) Transcribe(samples []float32) (string, error) { return f.text, nil }
func (f *fakeEngine) Close() error {
	f.closes.Add(1)
	return nil
}

func countingLoader(loads, closes *atomic.Int32) Loader {
	return func(path string) (Engine, error) {
		loads.Add(1)
		return &fakeEngine{closes: closes, text: "hello from " + path}, nil
	}
}

func TestEnsureLoadedSamePathLoadsOnce(t *testing.T) {
	var loads, closes atomic.Int32
	c := NewCache()
	c.RegisterLoader(Whisper, countingLoader(&loads, &closes))

	if err := c.EnsureLoaded(Whisper, "/models/a.bin"); err != nil {
		t.Fatal(err)
	}
	if err := c.EnsureLoaded(Whisper, "/models/a.bin"); err != nil {
		t.Fatal(err)
	}
	if got := loads.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
	if got := closes.Load(); got != 0 {
		t.Errorf("closes = %d, want 0", got)
	}
}

func TestEnsureLoadedPathChangeUnloadsThenLoads(t *testing.T) {
	var loads, closes atomic.Int32
	c := NewCache()
	c.RegisterLoader(Whisper, countingLoader(&loads, &closes))

	if err := c.EnsureLoaded(Whisper, "/models/a.bin"); err != nil {
		t.Fatal(err)
	}
	if err := c.EnsureLoaded(Whisper, "/models/b.bin"); err != nil {
		t.Fatal(err)
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loads = %d, want 2", got)
	}
	if got := closes.Load(); got != 1 {
		t.Errorf("closes = %d, want 1", got)
	}

	// The slot must now hold b.bin: a third call for it is a no-op.
	if err := c.EnsureLoaded(Whisper, "/models/b.bin"); err != nil {
		t.Fatal(err)
	}
	if got := loads.Load(); got != 2 {
		t.Errorf("loads after reuse = %d, want 2", got)
	}
}

func TestTranscribeDropsEngineUnlessKeptLoaded(t *testing.T) {
	var loads, closes atomic.Int32
	c := NewCache()
	c.RegisterLoader(Parakeet, countingLoader(&loads, &closes))

	if err := c.EnsureLoaded(Parakeet, "/models/p.onnx"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Transcribe(Parakeet, make([]float32, 16000)); err != nil {
		t.Fatal(err)
	}
	if got := closes.Load(); got != 1 {
		t.Errorf("closes with keepLoaded=false = %d, want 1", got)
	}
	if _, err := c.Transcribe(Parakeet, nil); err == nil {
		t.Fatal("expected error transcribing after engine was dropped")
	}

	c.SetKeepLoaded(true)
	if err := c.EnsureLoaded(Parakeet, "/models/p.onnx"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Transcribe(Parakeet, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Transcribe(Parakeet, nil); err != nil {
		t.Errorf("engine should have been retained: %v", err)
	}
}

func TestUnloadDropsEngine(t *testing.T) {
	var loads, closes atomic.Int32
	c := NewCache()
	c.SetKeepLoaded(true)
	c.RegisterLoader(Whisper, countingLoader(&loads, &closes))

	if err := c.EnsureLoaded(Whisper, "/models/a.bin"); err != nil {
		t.Fatal(err)
	}
	c.Unload(Whisper)
	if got := closes.Load(); got != 1 {
		t.Errorf("closes = %d, want 1", got)
	}
	c.Unload(Whisper) // second unload is a no-op
	if got := closes.Load(); got != 1 {
		t.Errorf("closes after double unload = %d, want 1", got)
	}
}

func TestEnsureLoadedWithoutLoaderFails(t *testing.T) {
	c := NewCache()
	err := c.EnsureLoaded(Whisper, "/models/a.bin")
	if err == nil {
		t.Fatal("expected error with no loader registered")
	}
}

func TestEnsureLoadedPropagatesLoaderError(t *testing.T) {
	c := NewCache()
	sentinel := errors.New("model file truncated")
	c.RegisterLoader(Whisper, func(path string) (Engine, error) { return nil, sentinel })
	err := c.EnsureLoaded(Whisper, "/models/bad.bin")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
}
