// Package engine implements the local model lifecycle: load-once,
// reuse, preload, and conditional unload for CPU-bound transcription
// engines (Whisper, Parakeet).
package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/jbarlow/vox/pkg/logger"
)

// Kind names a local engine family.
type Kind int

const (
	Whisper Kind = iota
	Parakeet
)

// Engine is the minimal contract a local inference engine must satisfy to
// live in the cache.
type Engine interface {
	// Transcribe runs inference on 16kHz mono f32 samples.
	Transcribe(samples []float32) (string, error)
	// Close releases native resources.
	Close() error
}

// Loader constructs an Engine from an on-disk model path.
type Loader func(path string) (Engine, error)

// slot holds at most one loaded engine, identified by path.
type slot struct {
	mu     sync.Mutex
	path   string
	engine Engine
}

// Cache is a process-wide, per-kind single-engine slot with
// lazy-init/reuse/conditional-unload semantics. Every access to a slot is
// serialized behind its mutex; callers must not hold the lock across a
// suspension point; call from a blocking task boundary.
type Cache struct {
	loaders map[Kind]Loader

	mu    sync.Mutex
	slots map[Kind]*slot

	keepLoaded bool
}

// NewCache constructs a Cache. Register loaders with RegisterLoader before
// calling EnsureLoaded.
func NewCache() *Cache {
	return &Cache{
		loaders: make(map[Kind]Loader),
		slots:   make(map[Kind]*slot),
	}
}

// RegisterLoader wires the constructor for a given engine kind.
func (c *Cache) RegisterLoader(k Kind, l Loader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaders[k] = l
}

// SetKeepLoaded controls whether Transcribe drops the engine after
// returning (false, the default) or retains it for the next call (true).
func (c *Cache) SetKeepLoaded(keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keepLoaded = keep
}

func (c *Cache) slotFor(k Kind) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[k]
	if !ok {
		s = &slot{}
		c.slots[k] = s
	}
	return s
}

// EnsureLoaded loads the engine at path into kind's slot. If the slot
// already holds an engine with the same path, this is a no-op; otherwise
// any existing engine is closed before the new one loads.
func (c *Cache) EnsureLoaded(k Kind, path string) error {
	s := c.slotFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil && s.path == path {
		return nil
	}

	if s.engine != nil {
		logger.Info(logger.CategoryEngine, "unloading engine kind=%d path=%s", k, s.path)
		if err := s.engine.Close(); err != nil {
			logger.Warning(logger.CategoryEngine, "error closing previous engine: %v", err)
		}
		s.engine = nil
		s.path = ""
	}

	c.mu.Lock()
	loader, ok := c.loaders[k]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("engine: no loader registered for kind %d", k)
	}

	restore := silenceStderr()
	eng, err := loader(path)
	restore()
	if err != nil {
		return fmt.Errorf("engine: load %s: %w", path, err)
	}

	s.engine = eng
	s.path = path
	logger.Info(logger.CategoryEngine, "loaded engine kind=%d path=%s", k, path)
	return nil
}

// Preload spawns a background load and returns immediately.
func (c *Cache) Preload(k Kind, path string) {
	go func() {
		if err := c.EnsureLoaded(k, path); err != nil {
			logger.Warning(logger.CategoryEngine, "preload failed: %v", err)
		}
	}()
}

// Transcribe requires an engine to already be loaded via EnsureLoaded. When
// keepLoaded is false (default), the engine is dropped after the call
// returns.
func (c *Cache) Transcribe(k Kind, samples []float32) (string, error) {
	s := c.slotFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return "", fmt.Errorf("engine: kind %d not loaded", k)
	}

	restore := silenceStderr()
	text, err := s.engine.Transcribe(samples)
	restore()

	c.mu.Lock()
	keep := c.keepLoaded
	c.mu.Unlock()

	if !keep {
		if cerr := s.engine.Close(); cerr != nil {
			logger.Warning(logger.CategoryEngine, "error closing engine after transcribe: %v", cerr)
		}
		s.engine = nil
		s.path = ""
	}

	return text, err
}

// Unload explicitly drops the engine for a kind, if loaded.
func (c *Cache) Unload(k Kind) {
	s := c.slotFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		_ = s.engine.Close()
		s.engine = nil
		s.path = ""
	}
}

// silenceStderr temporarily points the Go os.Stderr variable at the null
// device for the duration of a native call, and restores it unconditionally.
// File descriptor 2 is not redirected, so output that C code writes to
// stderr directly still reaches the terminal.
func silenceStderr() (restore func()) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return func() {}
	}
	original := os.Stderr
	os.Stderr = devNull
	return func() {
		os.Stderr = original
		devNull.Close()
	}
}
