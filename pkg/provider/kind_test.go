package provider

import "testing"

func TestParseKindRoundTrips(t *testing.T) {
	kinds := []Kind{
		OpenAI, OpenAIRealtime, Mistral, Groq, Deepgram,
		DeepgramRealtime, ElevenLabs, LocalWhisper, LocalParakeet, RemoteWhisper,
	}
	for _, k := range kinds {
		parsed, err := ParseKind(k.AsStr())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k.AsStr(), err)
		}
		if parsed != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.AsStr(), parsed, k)
		}
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	if _, err := ParseKind("carrier-pigeon"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRealtimeKindsAreMarked(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{OpenAI, false},
		{OpenAIRealtime, true},
		{Deepgram, false},
		{DeepgramRealtime, true},
		{LocalWhisper, false},
	}
	for _, c := range cases {
		if got := c.kind.IsRealtime(); got != c.want {
			t.Errorf("%s.IsRealtime() = %v, want %v", c.kind.AsStr(), got, c.want)
		}
	}
}

func TestLocalKindsNeedNoAPIKey(t *testing.T) {
	for _, k := range []Kind{LocalWhisper, LocalParakeet} {
		if k.RequiresAPIKey() {
			t.Errorf("%s should not require an API key", k.AsStr())
		}
		if k.APIKeyEnvVar() != "" {
			t.Errorf("%s should have no credential env var", k.AsStr())
		}
	}
	if !Deepgram.RequiresAPIKey() || Deepgram.APIKeyEnvVar() != "DEEPGRAM_API_KEY" {
		t.Error("deepgram credential metadata wrong")
	}
}
