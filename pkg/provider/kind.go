// Package provider defines the provider-kind enum, the capability
// interfaces (batch/streaming), and the registry that dispatches between
// them.
package provider

import "fmt"

// Kind identifies a transcription provider.
type Kind int

const (
	OpenAI Kind = iota
	OpenAIRealtime
	Mistral
	Groq
	Deepgram
	DeepgramRealtime
	ElevenLabs
	LocalWhisper
	LocalParakeet
	RemoteWhisper
)

type kindMeta struct {
	str           string
	display       string
	requiresKey   bool
	apiKeyEnvVar  string
	isRealtime    bool
}

var kindTable = map[Kind]kindMeta{
	OpenAI:           {"openai", "OpenAI", true, "OPENAI_API_KEY", false},
	OpenAIRealtime:   {"openai-realtime", "OpenAI Realtime", true, "OPENAI_API_KEY", true},
	Mistral:          {"mistral", "Mistral", true, "MISTRAL_API_KEY", false},
	Groq:             {"groq", "Groq", true, "GROQ_API_KEY", false},
	Deepgram:         {"deepgram", "Deepgram", true, "DEEPGRAM_API_KEY", false},
	DeepgramRealtime: {"deepgram-realtime", "Deepgram Realtime", true, "DEEPGRAM_API_KEY", true},
	ElevenLabs:       {"elevenlabs", "ElevenLabs", true, "ELEVENLABS_API_KEY", false},
	LocalWhisper:     {"local-whisper", "Local Whisper", false, "", false},
	LocalParakeet:    {"local-parakeet", "Local Parakeet", false, "", false},
	RemoteWhisper:    {"remote-whisper", "Remote Whisper", false, "", false},
}

// AsStr returns the kind's canonical string form.
func (k Kind) AsStr() string { return kindTable[k].str }

// DisplayName returns a human-friendly label.
func (k Kind) DisplayName() string { return kindTable[k].display }

// RequiresAPIKey reports whether a credential is mandatory to use this kind.
func (k Kind) RequiresAPIKey() bool { return kindTable[k].requiresKey }

// APIKeyEnvVar is the conventional environment variable name for this
// kind's credential, used only as a settings-layer fallback.
func (k Kind) APIKeyEnvVar() string { return kindTable[k].apiKeyEnvVar }

// IsRealtime reports whether this kind's primary path is a StreamingBackend.
func (k Kind) IsRealtime() bool { return kindTable[k].isRealtime }

// ParseKind parses a Kind from its AsStr representation.
func ParseKind(s string) (Kind, error) {
	for k, meta := range kindTable {
		if meta.str == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("provider: unknown kind %q", s)
}
