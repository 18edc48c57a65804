package elevenlabs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jbarlow/vox/pkg/provider"
)

func TestTranscribeSendsAPIKeyHeaderAndModelID(t *testing.T) {
	var gotKey, gotModel, gotLanguage string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("xi-api-key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model_id")
		gotLanguage = r.FormValue("language_code")
		w.Write([]byte(`{"text":"transcribed speech"}`))
	}))
	defer srv.Close()

	b := New()
	b.Endpoint = srv.URL
	result, err := b.Transcribe(context.Background(), srv.Client(), "xi-test-key", provider.Request{
		AudioBytes: []byte("mp3"),
		MimeType:   "audio/mpeg",
		Filename:   "chunk.mp3",
		Language:   "de",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "transcribed speech" {
		t.Errorf("text = %q", result.Text)
	}
	if gotKey != "xi-test-key" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if gotModel != "scribe_v1" {
		t.Errorf("model_id = %q", gotModel)
	}
	if gotLanguage != "de" {
		t.Errorf("language_code = %q", gotLanguage)
	}
}

func TestTranscribeNon2xxPreservesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := New()
	b.Endpoint = srv.URL
	_, err := b.Transcribe(context.Background(), srv.Client(), "k", provider.Request{Filename: "a.mp3"})
	var remote *provider.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d", remote.Status)
	}
}
