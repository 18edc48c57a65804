// Package preset implements the preset store: named
// (prompt, processor override, model override) triples chosen at recording
// time. Built-ins ship with the binary; user presets are TOML files in the
// config directory. Presets are immutable once loaded.
package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jbarlow/vox/pkg/postprocess"
)

// Preset is a named prompt template with optional processor and model
// overrides. Once constructed (by Store.Load), a
// Preset's fields are never mutated.
type Preset struct {
	Name                  string
	Description           string
	Prompt                string
	PostProcessorOverride *postprocess.Processor // nil = no override
	ModelOverride         string
}

// builtins ships the presets every installation has, even with no user
// config directory.
func builtins() []Preset {
	ollama := postprocess.Ollama
	return []Preset{
		{
			Name:        "default",
			Description: "Clean up filler words and punctuation, keep meaning intact.",
			Prompt:      postprocess.DefaultPrompt,
		},
		{
			Name:        "email",
			Description: "Rewrite as a polished, professional email.",
			Prompt: "Rewrite this voice transcript as a clear, professional email. " +
				"Remove filler words, fix grammar, and organize into short paragraphs. " +
				"Output only the email body, no subject line, no explanations.",
		},
		{
			Name:        "code-comment",
			Description: "Turn a spoken explanation into a terse code comment.",
			Prompt: "Rewrite this voice transcript as a single terse code comment describing " +
				"the idea. Remove filler words. Output only the comment text, no code fences, " +
				"no explanations.",
		},
		{
			Name:        "bullet-notes",
			Description: "Condense into bullet-point notes, offloaded to a local Ollama model.",
			Prompt: "Condense this voice transcript into short bullet-point notes. " +
				"Remove filler words and repetition. Output only the bullet list.",
			PostProcessorOverride: &ollama,
		},
	}
}

// Store holds the immutable set of loaded presets, keyed by name.
type Store struct {
	presets map[string]Preset
	order   []string
}

// Load builds a Store from the built-in presets plus every *.toml file in
// dir (the config directory's "presets" subdirectory). A user preset with
// the same name as a built-in replaces it. Load never mutates a Preset
// after construction.
func Load(dir string) (*Store, error) {
	s := &Store{presets: make(map[string]Preset)}
	for _, p := range builtins() {
		s.add(p)
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preset: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("preset: %s: %w", path, err)
		}
		s.add(p)
	}
	return s, nil
}

func (s *Store) add(p Preset) {
	if _, exists := s.presets[p.Name]; !exists {
		s.order = append(s.order, p.Name)
	}
	s.presets[p.Name] = p
}

type fileFormat struct {
	Name                  string `toml:"name"`
	Description           string `toml:"description"`
	Prompt                string `toml:"prompt"`
	PostProcessorOverride string `toml:"post_processor_override"` // "", "none", "openai", "mistral", "ollama"
	ModelOverride         string `toml:"model_override"`
}

func loadFile(path string) (Preset, error) {
	var f fileFormat
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return Preset{}, fmt.Errorf("parse: %w", err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), ".toml")
	}
	if f.Prompt == "" {
		return Preset{}, fmt.Errorf("preset %q: prompt is required", f.Name)
	}

	p := Preset{
		Name:          f.Name,
		Description:   f.Description,
		Prompt:        f.Prompt,
		ModelOverride: f.ModelOverride,
	}
	if f.PostProcessorOverride != "" {
		proc, err := parseProcessor(f.PostProcessorOverride)
		if err != nil {
			return Preset{}, err
		}
		p.PostProcessorOverride = &proc
	}
	return p, nil
}

func parseProcessor(s string) (postprocess.Processor, error) {
	switch s {
	case "none":
		return postprocess.None, nil
	case "openai":
		return postprocess.OpenAI, nil
	case "mistral":
		return postprocess.Mistral, nil
	case "ollama":
		return postprocess.Ollama, nil
	default:
		return 0, fmt.Errorf("unknown post_processor_override %q", s)
	}
}

// Get returns the named preset and whether it was found.
func (s *Store) Get(name string) (Preset, bool) {
	p, ok := s.presets[name]
	return p, ok
}

// Names returns every loaded preset's name, built-ins first, in load order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns every loaded preset, built-ins first, in load order.
func (s *Store) All() []Preset {
	out := make([]Preset, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.presets[name])
	}
	return out
}
