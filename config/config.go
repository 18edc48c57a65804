// Package config implements the settings store: an
// in-memory Settings value guarded by a mutex, persisted as TOML in the
// user's config directory with a debounced write-through, following the
// donor hyprvoice config package's toml.DecodeFile/toml.Encode idiom. The
// core only ever reads a Settings snapshot; all writes go through Store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/jbarlow/vox/pkg/logger"
	"github.com/jbarlow/vox/pkg/postprocess"
	"github.com/jbarlow/vox/pkg/provider"
)

// VADSettings controls the capture-side speech gate.
type VADSettings struct {
	Enabled   bool    `toml:"enabled"`
	Threshold float32 `toml:"threshold"`
}

// PostProcessingSettings selects the transcript-cleanup LLM call.
type PostProcessingSettings struct {
	Enabled      bool                 `toml:"enabled"`
	Processor    postprocess.Processor `toml:"-"`
	ProcessorStr string               `toml:"processor"` // "none"|"openai"|"mistral"|"ollama"
	Prompt       string               `toml:"prompt"`
	ActivePreset string               `toml:"active_preset"`
}

// OllamaSettings points at a local Ollama server.
type OllamaSettings struct {
	URL       string `toml:"url"`
	Model     string `toml:"model"`
	KeepAlive string `toml:"keep_alive"` // duration string, e.g. "5m"
}

// RemoteWhisperSettings points at a self-hosted OpenAI-compatible
// transcription server (whisper.cpp server, faster-whisper-server, etc.).
type RemoteWhisperSettings struct {
	URL   string `toml:"url"`
	Model string `toml:"model"`
}

// ServicesSettings groups external service endpoints.
type ServicesSettings struct {
	Ollama        OllamaSettings        `toml:"ollama"`
	RemoteWhisper RemoteWhisperSettings `toml:"remote_whisper"`
}

// LocalModelPaths locates on-disk model files for the local engines.
type LocalModelPaths struct {
	Whisper  string `toml:"whisper"`
	Parakeet string `toml:"parakeet"`
}

// ChunkerSettings tunes progressive chunking.
type ChunkerSettings struct {
	TargetDurationSecs float64 `toml:"target_duration_secs"`
}

// Settings is the configuration value the engine consumes read-only.
type Settings struct {
	Provider         provider.Kind
	Credentials      map[provider.Kind]string
	Language         string
	VAD              VADSettings
	MicrophoneDevice string
	ClipboardBackend string
	PostProcessing   PostProcessingSettings
	Services         ServicesSettings
	LocalModels      LocalModelPaths
	Chunker          ChunkerSettings
	KeepModelLoaded  bool
}

// Credential returns the credential for Settings.Provider, or the kind's
// conventional environment variable as a fallback, matching the donor
// hyprvoice config's "config value, else env var" precedence.
func (s Settings) Credential() string {
	if key := s.Credentials[s.Provider]; key != "" {
		return key
	}
	if v := os.Getenv(s.Provider.APIKeyEnvVar()); v != "" {
		return v
	}
	return ""
}

// Default returns the built-in default settings.
func Default() Settings {
	return Settings{
		Provider:         provider.OpenAI,
		Credentials:      make(map[provider.Kind]string),
		ClipboardBackend: "default",
		VAD: VADSettings{
			Enabled:   true,
			Threshold: 0.5,
		},
		PostProcessing: PostProcessingSettings{
			Enabled:      false,
			Processor:    postprocess.None,
			ProcessorStr: "none",
		},
		Services: ServicesSettings{
			Ollama: OllamaSettings{KeepAlive: "5m"},
		},
		Chunker: ChunkerSettings{
			TargetDurationSecs: 90,
		},
		KeepModelLoaded: false,
	}
}

// fileFormat is the on-disk TOML shape; it exists separately from Settings
// because TOML keys must be strings, not the provider.Kind enum.
type fileFormat struct {
	Provider         string                 `toml:"provider"`
	Credentials      map[string]string      `toml:"credentials"`
	Language         string                 `toml:"language"`
	VAD              VADSettings            `toml:"vad"`
	MicrophoneDevice string                 `toml:"microphone_device"`
	ClipboardBackend string                 `toml:"clipboard_backend"`
	PostProcessing   PostProcessingSettings `toml:"post_processing"`
	Services         ServicesSettings       `toml:"services"`
	LocalModels      LocalModelPaths        `toml:"local_models"`
	Chunker          ChunkerSettings        `toml:"chunker"`
	KeepModelLoaded  bool                   `toml:"keep_model_loaded"`
}

func toFile(s Settings) fileFormat {
	creds := make(map[string]string, len(s.Credentials))
	for k, v := range s.Credentials {
		creds[k.AsStr()] = v
	}
	s.PostProcessing.ProcessorStr = processorToStr(s.PostProcessing.Processor)
	return fileFormat{
		Provider:         s.Provider.AsStr(),
		Credentials:      creds,
		Language:         s.Language,
		VAD:              s.VAD,
		MicrophoneDevice: s.MicrophoneDevice,
		ClipboardBackend: s.ClipboardBackend,
		PostProcessing:   s.PostProcessing,
		Services:         s.Services,
		LocalModels:      s.LocalModels,
		Chunker:          s.Chunker,
		KeepModelLoaded:  s.KeepModelLoaded,
	}
}

func fromFile(f fileFormat) (Settings, error) {
	s := Default()
	if f.Provider != "" {
		kind, err := provider.ParseKind(f.Provider)
		if err != nil {
			return Settings{}, fmt.Errorf("config: %w", err)
		}
		s.Provider = kind
	}
	for str, key := range f.Credentials {
		kind, err := provider.ParseKind(str)
		if err != nil {
			logger.Warning(logger.CategoryApp, "config: ignoring credential for unknown provider %q", str)
			continue
		}
		s.Credentials[kind] = key
	}
	s.Language = f.Language
	if f.VAD != (VADSettings{}) {
		s.VAD = f.VAD
	}
	s.MicrophoneDevice = f.MicrophoneDevice
	if f.ClipboardBackend != "" {
		s.ClipboardBackend = f.ClipboardBackend
	}
	s.PostProcessing = f.PostProcessing
	s.PostProcessing.Processor = strToProcessor(f.PostProcessing.ProcessorStr)
	s.Services = f.Services
	s.LocalModels = f.LocalModels
	if f.Chunker.TargetDurationSecs > 0 {
		s.Chunker = f.Chunker
	}
	s.KeepModelLoaded = f.KeepModelLoaded
	return s, nil
}

func processorToStr(p postprocess.Processor) string {
	switch p {
	case postprocess.OpenAI:
		return "openai"
	case postprocess.Mistral:
		return "mistral"
	case postprocess.Ollama:
		return "ollama"
	default:
		return "none"
	}
}

func strToProcessor(s string) postprocess.Processor {
	switch s {
	case "openai":
		return postprocess.OpenAI
	case "mistral":
		return postprocess.Mistral
	case "ollama":
		return postprocess.Ollama
	default:
		return postprocess.None
	}
}

// Dir returns the application's config directory, creating it if absent.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: user config dir: %w", err)
	}
	dir := filepath.Join(base, "vox")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the settings TOML file's path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.toml"), nil
}

const saveDebounce = 500 * time.Millisecond

// Store owns the settings value: it holds the mutex, the
// debounced write-through, and an optional fsnotify watch for external
// edits. The core only calls Get/Credential; UIs call Update.
type Store struct {
	path string

	mu       sync.Mutex
	current  Settings
	timer    *time.Timer
	watcher  *fsnotify.Watcher
	onChange func(Settings)
}

// Load reads settings.toml, creating it with defaults if absent, and
// returns a ready Store.
func Load() (*Store, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	store := &Store{path: path, current: Default()}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(logger.CategoryApp, "config: no settings file at %s, writing defaults", path)
		if err := store.writeNow(); err != nil {
			return nil, err
		}
		return store, nil
	}

	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	settings, err := fromFile(f)
	if err != nil {
		return nil, err
	}
	store.current = settings
	return store, nil
}

// Get returns a copy of the current settings snapshot.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies mutate to a copy of the current settings, commits it, and
// schedules a debounced write-through. Concurrent Updates coalesce into a
// single file write saveDebounce after the last one.
func (s *Store) Update(mutate func(*Settings)) Settings {
	s.mu.Lock()
	mutate(&s.current)
	snapshot := s.current
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(saveDebounce, func() {
		if err := s.writeNow(); err != nil {
			logger.Warning(logger.CategoryApp, "config: debounced save failed: %v", err)
		}
	})
	s.mu.Unlock()
	return snapshot
}

// writeNow persists the current settings to disk immediately, atomically
// (write to a temp file, then rename).
func (s *Store) writeNow() error {
	s.mu.Lock()
	f := toFile(s.current)
	path := s.path
	s.mu.Unlock()

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	enc := toml.NewEncoder(file)
	if err := enc.Encode(f); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename temp file: %w", err)
	}
	return nil
}

// Flush forces any pending debounced write to happen immediately, for use
// at shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.writeNow()
}

// Watch starts an fsnotify watch on the settings file so external edits
// (e.g. a user hand-editing settings.toml) are picked up without a
// restart. onChange, if non-nil, is invoked with the reloaded snapshot
// after each external change. Watch must be called at most once per Store.
func (s *Store) Watch(onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.onChange = onChange
	s.mu.Unlock()

	go s.watchLoop(watcher)
	return nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			var f fileFormat
			if _, err := toml.DecodeFile(s.path, &f); err != nil {
				logger.Warning(logger.CategoryApp, "config: reload after external edit failed: %v", err)
				continue
			}
			settings, err := fromFile(f)
			if err != nil {
				logger.Warning(logger.CategoryApp, "config: reload after external edit failed: %v", err)
				continue
			}
			s.mu.Lock()
			s.current = settings
			onChange := s.onChange
			s.mu.Unlock()
			if onChange != nil {
				onChange(settings)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warning(logger.CategoryApp, "config: watcher error: %v", err)
		}
	}
}

// Close stops the fsnotify watch, if started.
func (s *Store) Close() error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}
