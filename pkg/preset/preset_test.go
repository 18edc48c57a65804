package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jbarlow/vox/pkg/postprocess"
)

func TestLoadWithoutUserDirReturnsBuiltins(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Get("default"); !ok {
		t.Fatal("expected built-in \"default\" preset")
	}
	if len(s.Names()) == 0 {
		t.Fatal("expected at least one built-in preset")
	}
}

func TestUserPresetOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	content := `
prompt = "Custom override prompt."
description = "overridden"
post_processor_override = "ollama"
model_override = "llama3"
`
	if err := os.WriteFile(filepath.Join(dir, "default.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}

	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, ok := s.Get("default")
	if !ok {
		t.Fatal("expected \"default\" preset to exist")
	}
	if p.Prompt != "Custom override prompt." {
		t.Errorf("Prompt = %q, want override", p.Prompt)
	}
	if p.PostProcessorOverride == nil || *p.PostProcessorOverride != postprocess.Ollama {
		t.Errorf("PostProcessorOverride = %v, want Ollama", p.PostProcessorOverride)
	}
	if p.ModelOverride != "llama3" {
		t.Errorf("ModelOverride = %q, want llama3", p.ModelOverride)
	}
}

func TestUserPresetRejectsEmptyPrompt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.toml"), []byte(`description = "no prompt"`), 0o644); err != nil {
		t.Fatalf("write preset: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error loading preset with empty prompt")
	}
}
