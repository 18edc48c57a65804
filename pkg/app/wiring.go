package app

import (
	"net/http"

	"github.com/jbarlow/vox/config"
	"github.com/jbarlow/vox/pkg/audio"
	"github.com/jbarlow/vox/pkg/engine"
	"github.com/jbarlow/vox/pkg/postprocess"
	"github.com/jbarlow/vox/pkg/provider"
	"github.com/jbarlow/vox/pkg/provider/deepgram"
	"github.com/jbarlow/vox/pkg/provider/elevenlabs"
	"github.com/jbarlow/vox/pkg/provider/openaicompat"
	"github.com/jbarlow/vox/pkg/provider/openairealtime"
)

// Mistral's chat-completions and transcription APIs are OpenAI-compatible;
// only the base URL differs.
const mistralBaseURL = "https://api.mistral.ai/v1"

// groqBaseURL serves Groq's OpenAI-compatible Whisper endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// NewRecorderFactory adapts pkg/audio.Capture into a RecorderFactory, the
// production collaborator behind the Orchestrator's real recordings.
func NewRecorderFactory() RecorderFactory {
	return func(deviceName string, vadEnabled bool, vadThreshold float32) (Recorder, error) {
		cfg := audio.DefaultConfig()
		cfg.DeviceName = deviceName
		cfg.VAD.Enabled = vadEnabled
		if vadThreshold > 0 {
			cfg.VAD.Threshold = vadThreshold
		}
		return audio.New(cfg)
	}
}

// NewRegistry builds the provider.Registry wiring every backend this
// repository ships: OpenAI-compatible REST for OpenAI/Groq/
// Mistral/RemoteWhisper, Deepgram's dual batch+streaming backend, ElevenLabs
// REST, and the OpenAI Realtime WebSocket backend.
func NewRegistry(settings config.Settings) *provider.Registry {
	reg := provider.NewRegistry()

	reg.RegisterBatch(provider.OpenAI, openaicompat.New())
	reg.RegisterBatch(provider.Groq, openaicompat.New(
		openaicompat.WithBaseURL(groqBaseURL),
		openaicompat.WithModel("whisper-large-v3"),
	))
	reg.RegisterBatch(provider.Mistral, openaicompat.New(
		openaicompat.WithBaseURL(mistralBaseURL),
		openaicompat.WithModel("voxtral-mini-latest"),
	))

	dg := deepgram.New()
	reg.RegisterBatch(provider.Deepgram, dg)
	reg.RegisterStreaming(provider.DeepgramRealtime, dg)

	reg.RegisterBatch(provider.ElevenLabs, elevenlabs.New())
	reg.RegisterStreaming(provider.OpenAIRealtime, openairealtime.New())

	if url := settings.Services.RemoteWhisper.URL; url != "" {
		opts := []openaicompat.Option{openaicompat.WithBaseURL(url)}
		if m := settings.Services.RemoteWhisper.Model; m != "" {
			opts = append(opts, openaicompat.WithModel(m))
		}
		reg.RegisterBatch(provider.RemoteWhisper, openaicompat.New(opts...))
	}

	return reg
}

// NewPostBackends builds the post-processing backend set: OpenAI and
// Mistral share the openai-go client with different base URLs, Ollama talks
// directly to a local server.
func NewPostBackends(settings config.Settings) map[postprocess.Processor]postprocess.Backend {
	backends := map[postprocess.Processor]postprocess.Backend{}

	if key := settings.Credentials[provider.OpenAI]; key != "" {
		backends[postprocess.OpenAI] = postprocess.NewOpenAIBackend(key, "", "gpt-5-nano")
	}
	if key := settings.Credentials[provider.Mistral]; key != "" {
		backends[postprocess.Mistral] = postprocess.NewOpenAIBackend(key, mistralBaseURL, "mistral-small-latest")
	}

	ollamaModel := settings.Services.Ollama.Model
	if ollamaModel == "" {
		ollamaModel = "llama3"
	}
	backends[postprocess.Ollama] = postprocess.NewOllamaBackend(settings.Services.Ollama.URL, ollamaModel, settings.Services.Ollama.KeepAlive)

	return backends
}

// NewEngineCache builds the local-engine cache, registering the Whisper and
// Parakeet loaders. When compiled without cgo support, the stub loaders
// return an "unavailable" error on every load.
func NewEngineCache(settings config.Settings) *engine.Cache {
	cache := engine.NewCache()
	cache.RegisterLoader(engine.Whisper, engine.WhisperLoader(settings.Language))
	cache.RegisterLoader(engine.Parakeet, engine.ParakeetLoader())
	cache.SetKeepLoaded(settings.KeepModelLoaded)
	return cache
}

// NewHTTPClient returns the pooled client shared across REST transcription
// requests. It carries no client-level Timeout: that field is a hard
// wall-clock ceiling that would override the per-request context deadlines
// each backend already sets (300s for transcription uploads), so the
// deadline is left entirely to those contexts.
func NewHTTPClient() *http.Client {
	return &http.Client{}
}
