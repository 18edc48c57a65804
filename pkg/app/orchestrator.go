// Package app implements the orchestrator: the
// Idle->Recording->Transcribing->Idle state machine that sequences
// capture, chunking/streaming, transcription, post-processing, and the
// clipboard write, and guarantees cleanup on every exit path.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jbarlow/vox/config"
	"github.com/jbarlow/vox/pkg/audio"
	"github.com/jbarlow/vox/pkg/chunker"
	"github.com/jbarlow/vox/pkg/encode"
	"github.com/jbarlow/vox/pkg/engine"
	"github.com/jbarlow/vox/pkg/logger"
	"github.com/jbarlow/vox/pkg/merge"
	"github.com/jbarlow/vox/pkg/postprocess"
	"github.com/jbarlow/vox/pkg/preset"
	"github.com/jbarlow/vox/pkg/provider"
)

// audioDebugDumpChunk writes a chunk to a WAV file under VOX_AUDIO_DEBUG_DIR,
// if set, so what a provider actually received can be inspected offline. A
// no-op when the env var is unset.
func audioDebugDumpChunk(sessionID string, index int, samples []float32) {
	dir := os.Getenv("VOX_AUDIO_DEBUG_DIR")
	if dir == "" {
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-chunk-%03d.wav", sessionID, index))
	if err := audio.SaveToWav(samples, path); err != nil {
		logger.Warning(logger.CategoryOrchestrator, "audio debug dump failed: %v", err)
	}
}

// RecordingState is the orchestrator's phase. The only legal transitions
// are Idle->Recording, Recording->Transcribing, Transcribing->Idle.
type RecordingState int

const (
	Idle RecordingState = iota
	Recording
	Transcribing
)

func (s RecordingState) String() string {
	switch s {
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	default:
		return "idle"
	}
}

// ClipboardSink receives the final transcript. Backends are pluggable;
// the orchestrator never reads clipboard state back.
type ClipboardSink interface {
	WriteText(text string) error
}

// idleUnloadDebounce is how long an idle local engine sits before the
// unload task fires, giving a quick follow-up recording a chance to reuse
// it.
const idleUnloadDebounce = 8 * time.Second

// Orchestrator sequences capture, transcription, post-processing, and the
// clipboard write for one recording at a time. It owns the
// recorder handle, the chunker/transcription task for the current
// recording, and the oneshot result receiver; it never leaves a recorder
// running or a task dangling across a state transition.
type Orchestrator struct {
	registry     *provider.Registry
	engines      *engine.Cache
	postBackends map[postprocess.Processor]postprocess.Backend
	clipboard    ClipboardSink
	httpClient   *http.Client
	recorderFor  RecorderFactory
	settings     func() config.Settings
	onEvent      EventSink

	mu           sync.Mutex
	state        RecordingState
	recorder     Recorder
	cancel       context.CancelFunc
	resultCh     chan transcribeOutcome
	activePreset preset.Preset
	sessionID    string

	idleUnload *time.Timer
}

// Config bundles New's dependencies.
type Config struct {
	Registry        *provider.Registry
	Engines         *engine.Cache
	PostBackends    map[postprocess.Processor]postprocess.Backend
	Clipboard       ClipboardSink
	HTTPClient      *http.Client
	RecorderFactory RecorderFactory
	Settings        func() config.Settings
	OnEvent         EventSink
}

// New constructs an idle Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}
	return &Orchestrator{
		registry:     cfg.Registry,
		engines:      cfg.Engines,
		postBackends: cfg.PostBackends,
		clipboard:    cfg.Clipboard,
		httpClient:   cfg.HTTPClient,
		recorderFor:  cfg.RecorderFactory,
		settings:     cfg.Settings,
		onEvent:      cfg.OnEvent,
		state:        Idle,
	}
}

// State returns the current recording state.
func (o *Orchestrator) State() RecordingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s RecordingState) {
	o.state = s
	o.onEvent(RecordingStateChanged{State: s})
}

// transcribeOutcome is the oneshot result a transcribe branch delivers to
// Stop: either a final transcript or a terminal error.
type transcribeOutcome struct {
	text string
	err  error
}

// Start begins a recording using the named preset (an empty name selects the
// settings' active preset, or "default" when that is empty too). Re-entrant calls while
// Recording or Transcribing are a no-op.
func (o *Orchestrator) Start(ctx context.Context, presets *preset.Store, presetName string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Idle {
		return nil
	}

	settings := o.settings()
	kind := settings.Provider

	if kind.RequiresAPIKey() && settings.Credential() == "" {
		return fmt.Errorf("config missing: no credential configured for provider %s (set %s)", kind.DisplayName(), kind.APIKeyEnvVar())
	}

	active, err := resolvePreset(presets, presetName, settings)
	if err != nil {
		return err
	}
	o.activePreset = active
	o.sessionID = uuid.New().String()
	logger.Info(logger.CategoryOrchestrator, "[%s] starting recording with provider %s", o.sessionID, kind.DisplayName())

	o.cancelIdleUnload()

	vadEnabled := settings.VAD.Enabled && !kind.IsRealtime()
	recorder, err := o.recorderFor(settings.MicrophoneDevice, vadEnabled, settings.VAD.Threshold)
	if err != nil {
		return fmt.Errorf("device error: %w", err)
	}
	if err := recorder.Start(); err != nil {
		return fmt.Errorf("device error: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan transcribeOutcome, 1)

	switch {
	case kind.IsRealtime():
		o.warmLocalOrCloud(kind, settings)
		go o.runRealtime(runCtx, kind, settings, recorder.Frames(), resultCh)
	case kind == provider.LocalWhisper || kind == provider.LocalParakeet:
		o.warmLocalOrCloud(kind, settings)
		go o.runLocalChunked(runCtx, o.sessionID, kind, settings, recorder.Frames(), resultCh)
	default:
		o.warmLocalOrCloud(kind, settings)
		go o.runRESTChunked(runCtx, o.sessionID, kind, settings, recorder.Frames(), resultCh)
	}

	o.recorder = recorder
	o.cancel = cancel
	o.resultCh = resultCh
	o.setState(Recording)
	return nil
}

// resolvePreset looks up presetName, falling back to the settings' active
// preset and then to "default". With no preset store, the settings' own
// post-processing prompt is used, wrapped as an unnamed preset.
func resolvePreset(presets *preset.Store, presetName string, settings config.Settings) (preset.Preset, error) {
	if presets == nil {
		return preset.Preset{Prompt: settings.PostProcessing.Prompt}, nil
	}
	name := presetName
	if name == "" {
		name = settings.PostProcessing.ActivePreset
	}
	if name == "" {
		name = "default"
	}
	p, ok := presets.Get(name)
	if !ok {
		return preset.Preset{}, fmt.Errorf("config missing: unknown preset %q", name)
	}
	return p, nil
}

// warmLocalOrCloud preloads the local engine in the background, or does
// nothing extra for cloud providers beyond relying on the shared pooled
// http.Client.
func (o *Orchestrator) warmLocalOrCloud(kind provider.Kind, settings config.Settings) {
	switch kind {
	case provider.LocalWhisper:
		o.engines.Preload(engine.Whisper, settings.LocalModels.Whisper)
	case provider.LocalParakeet:
		o.engines.Preload(engine.Parakeet, settings.LocalModels.Parakeet)
	}
}

// Stop ends the current recording: the audio stream closes, the capture
// channel drains through whichever transcribe branch is running, and the
// branch's result is awaited. Re-entrant calls while Idle are a no-op, so
// calling Stop twice does nothing after the first.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	if o.state != Recording {
		o.mu.Unlock()
		return
	}
	recorder := o.recorder
	resultCh := o.resultCh
	cancel := o.cancel
	settings := o.settings()
	activePreset := o.activePreset
	sessionID := o.sessionID
	o.setState(Transcribing)
	o.mu.Unlock()

	if err := recorder.Stop(); err != nil {
		logger.Warning(logger.CategoryOrchestrator, "recorder stop: %v", err)
	}

	transcribeStarted := time.Now()
	var outcome transcribeOutcome
	select {
	case outcome = <-resultCh:
	case <-ctx.Done():
		cancel()
		outcome = transcribeOutcome{err: fmt.Errorf("task failure: %w", ctx.Err())}
	}
	cancel()

	recorder.Close()

	o.mu.Lock()
	o.recorder = nil
	o.cancel = nil
	o.resultCh = nil
	o.mu.Unlock()

	o.finish(sessionID, settings, activePreset, time.Since(transcribeStarted), outcome)
}

// finish applies post-processing, writes the clipboard, emits the terminal
// event, and returns the state machine to Idle -- the one path every
// transcribe branch funnels through, so cleanup never depends on which
// branch produced the result. The active preset's prompt and
// processor/model overrides take precedence over the settings'
// standing post-processing configuration.
func (o *Orchestrator) finish(sessionID string, settings config.Settings, active preset.Preset, transcribeTook time.Duration, outcome transcribeOutcome) {
	if outcome.err != nil {
		logger.Warning(logger.CategoryOrchestrator, "[%s] transcription failed: %v", sessionID, outcome.err)
		o.mu.Lock()
		o.setState(Idle)
		o.mu.Unlock()
		o.onEvent(TranscriptionError{Message: outcome.err.Error()})
		return
	}

	finalText := outcome.text
	pp := settings.PostProcessing
	processor := pp.Processor
	if active.PostProcessorOverride != nil {
		processor = *active.PostProcessorOverride
	}
	if pp.Enabled && processor != postprocess.None {
		o.onEvent(PostProcessingStarted{})
		o.rewarmIfStale(processor, active.ModelOverride, transcribeTook)
		prompt := active.Prompt
		if prompt == "" {
			prompt = pp.Prompt
		}
		if prompt == "" {
			prompt = postprocess.DefaultPrompt
		}
		ctx, cancel := context.WithTimeout(context.Background(), postprocessTimeout(processor))
		cleaned, err := postprocess.Run(ctx, o.postBackends, processor, finalText, prompt, active.ModelOverride)
		cancel()
		if err != nil {
			o.onEvent(PostProcessWarning{Message: err.Error()})
		} else {
			finalText = cleaned
		}
	}

	if o.clipboard != nil {
		if err := o.clipboard.WriteText(finalText); err != nil {
			logger.Warning(logger.CategoryOrchestrator, "clipboard write failed: %v", err)
		}
	}

	logger.Info(logger.CategoryOrchestrator, "[%s] transcription complete (%d chars)", sessionID, len(finalText))
	o.onEvent(TranscriptionComplete{Text: finalText})

	o.mu.Lock()
	o.setState(Idle)
	o.mu.Unlock()

	if !settings.KeepModelLoaded {
		o.scheduleIdleUnload(settings.Provider)
	}
}

// rewarmIfStale asks an Ollama-style backend to reload its model when the
// transcription phase outlasted the server's keep-alive window, so the
// rewrite call that follows does not pay a cold model load on top of
// generation.
func (o *Orchestrator) rewarmIfStale(p postprocess.Processor, model string, transcribeTook time.Duration) {
	w, ok := o.postBackends[p].(postprocess.Warmer)
	if !ok {
		return
	}
	keepAlive := w.KeepAlive()
	if keepAlive <= 0 || transcribeTook <= keepAlive {
		return
	}
	logger.Info(logger.CategoryOrchestrator, "transcription took %s (> keep-alive %s), re-warming model", transcribeTook.Round(time.Second), keepAlive)
	ctx, cancel := context.WithTimeout(context.Background(), postprocessTimeout(p))
	defer cancel()
	if err := w.Warm(ctx, model); err != nil {
		logger.Warning(logger.CategoryOrchestrator, "model re-warm failed: %v", err)
	}
}

func postprocessTimeout(p postprocess.Processor) time.Duration {
	if p == postprocess.Ollama {
		return 120 * time.Second
	}
	return 60 * time.Second
}

func (o *Orchestrator) scheduleIdleUnload(kind provider.Kind) {
	var ek engine.Kind
	switch kind {
	case provider.LocalWhisper:
		ek = engine.Whisper
	case provider.LocalParakeet:
		ek = engine.Parakeet
	default:
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.idleUnload != nil {
		o.idleUnload.Stop()
	}
	o.idleUnload = time.AfterFunc(idleUnloadDebounce, func() {
		o.engines.Unload(ek)
	})
}

func (o *Orchestrator) cancelIdleUnload() {
	if o.idleUnload != nil {
		o.idleUnload.Stop()
		o.idleUnload = nil
	}
}

// runRealtime implements the realtime branch: one streaming task
// holding the sample receiver and delivering its result as a oneshot.
func (o *Orchestrator) runRealtime(ctx context.Context, kind provider.Kind, settings config.Settings, frames <-chan []float32, resultCh chan<- transcribeOutcome) {
	backend, err := o.registry.Streaming(kind)
	if err != nil {
		resultCh <- transcribeOutcome{err: err}
		return
	}
	text, err := backend.TranscribeStream(ctx, settings.Credential(), frames, settings.Language)
	resultCh <- transcribeOutcome{text: text, err: err}
}

// runRESTChunked implements the chunked cloud branch: the chunker
// task feeds a transcription task that MP3-encodes and uploads each chunk.
func (o *Orchestrator) runRESTChunked(ctx context.Context, sessionID string, kind provider.Kind, settings config.Settings, frames <-chan []float32, resultCh chan<- transcribeOutcome) {
	backend, err := o.registry.Batch(kind)
	if err != nil {
		resultCh <- transcribeOutcome{err: err}
		return
	}

	cfg := chunker.DefaultConfig()
	if settings.Chunker.TargetDurationSecs > 0 {
		cfg.TargetDurationSecs = settings.Chunker.TargetDurationSecs
	}
	chunks := chunker.New(cfg, nil).Run(frames)

	var transcriptions []merge.ChunkTranscription
	credential := settings.Credential()
	for c := range chunks {
		select {
		case <-ctx.Done():
			resultCh <- transcribeOutcome{err: fmt.Errorf("task failure: %w", ctx.Err())}
			return
		default:
		}

		audioDebugDumpChunk(sessionID, c.Index, c.Samples)

		mp3Bytes, err := encode.ToMP3(c.Samples)
		if err != nil {
			resultCh <- transcribeOutcome{err: fmt.Errorf("encoder failure: %w", err)}
			return
		}
		progress := func(stage string) {
			logger.Debug(logger.CategoryProvider, "[%s] chunk %d: %s", sessionID, c.Index, stage)
		}
		req := provider.Request{
			AudioBytes:   mp3Bytes,
			MimeType:     "audio/mpeg",
			Filename:     "chunk.mp3",
			Language:     settings.Language,
			ProgressSink: progress,
		}
		result, err := backend.Transcribe(ctx, o.httpClient, credential, req)
		if err != nil {
			resultCh <- transcribeOutcome{err: err}
			return
		}
		transcriptions = append(transcriptions, merge.ChunkTranscription{
			Index:             c.Index,
			Text:              result.Text,
			HasLeadingOverlap: c.HasLeadingOverlap,
		})
	}

	resultCh <- transcribeOutcome{text: merge.Merge(transcriptions)}
}

// runLocalChunked implements the local-model branch: chunking feeds
// the engine cache instead of a REST backend.
func (o *Orchestrator) runLocalChunked(ctx context.Context, sessionID string, kind provider.Kind, settings config.Settings, frames <-chan []float32, resultCh chan<- transcribeOutcome) {
	var (
		ek   engine.Kind
		path string
	)
	switch kind {
	case provider.LocalWhisper:
		ek, path = engine.Whisper, settings.LocalModels.Whisper
	case provider.LocalParakeet:
		ek, path = engine.Parakeet, settings.LocalModels.Parakeet
	}

	if err := o.engines.EnsureLoaded(ek, path); err != nil {
		resultCh <- transcribeOutcome{err: fmt.Errorf("config missing: %w", err)}
		return
	}
	o.engines.SetKeepLoaded(settings.KeepModelLoaded)

	cfg := chunker.DefaultConfig()
	if settings.Chunker.TargetDurationSecs > 0 {
		cfg.TargetDurationSecs = settings.Chunker.TargetDurationSecs
	}
	chunks := chunker.New(cfg, nil).Run(frames)

	var transcriptions []merge.ChunkTranscription
	for c := range chunks {
		select {
		case <-ctx.Done():
			resultCh <- transcribeOutcome{err: fmt.Errorf("task failure: %w", ctx.Err())}
			return
		default:
		}

		audioDebugDumpChunk(sessionID, c.Index, c.Samples)

		text, err := o.engines.Transcribe(ek, c.Samples)
		if err != nil {
			resultCh <- transcribeOutcome{err: err}
			return
		}
		transcriptions = append(transcriptions, merge.ChunkTranscription{
			Index:             c.Index,
			Text:              text,
			HasLeadingOverlap: c.HasLeadingOverlap,
		})
	}

	resultCh <- transcribeOutcome{text: merge.Merge(transcriptions)}
}
