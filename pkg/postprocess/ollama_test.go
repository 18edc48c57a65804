package postprocess

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaCompleteSendsChatRequest(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaChatMessage{Role: "assistant", Content: "cleaned text"},
		})
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL, "llama3", "5m")
	out, err := b.Complete(context.Background(), "clean this up", "um, raw text", "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "cleaned text" {
		t.Errorf("out = %q", out)
	}
	if got.Model != "llama3" {
		t.Errorf("model = %q", got.Model)
	}
	if got.Stream {
		t.Error("stream should be false")
	}
	if got.KeepAlive != "5m" {
		t.Errorf("keep_alive = %q", got.KeepAlive)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOllamaConnectFailureNamesBaseURL(t *testing.T) {
	b := NewOllamaBackend("http://127.0.0.1:1", "llama3", "")
	_, err := b.Complete(context.Background(), "p", "t", "")
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !strings.Contains(err.Error(), "http://127.0.0.1:1") {
		t.Errorf("error should name the base URL: %v", err)
	}
	if !strings.Contains(err.Error(), "ollama serve") {
		t.Errorf("error should suggest starting the server: %v", err)
	}
}

func TestOllamaWarmLoadsModelWithoutMessages(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL, "llama3", "10m")
	if err := b.Warm(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if got.Model != "llama3" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 0 {
		t.Errorf("warm request should carry no messages, got %+v", got.Messages)
	}
}

func TestOllamaKeepAliveParsesDuration(t *testing.T) {
	if d := NewOllamaBackend("", "m", "5m").KeepAlive(); d != 5*time.Minute {
		t.Errorf("KeepAlive() = %s, want 5m", d)
	}
	if d := NewOllamaBackend("", "m", "").KeepAlive(); d != 0 {
		t.Errorf("KeepAlive() with empty setting = %s, want 0", d)
	}
}
