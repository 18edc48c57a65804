package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jbarlow/vox/pkg/provider"
)

func TestBatchTranscribeSendsRawBodyAndParsesAlternatives(t *testing.T) {
	var gotAuth, gotContentType, gotModel string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotModel = r.URL.Query().Get("model")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"spoken text"}]}]}}`))
	}))
	defer srv.Close()

	b := New()
	b.BatchEndpoint = srv.URL
	result, err := b.Transcribe(context.Background(), srv.Client(), "dg-key", provider.Request{
		AudioBytes: []byte("mp3-payload"),
		MimeType:   "audio/mpeg",
		Filename:   "chunk.mp3",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "spoken text" {
		t.Errorf("text = %q", result.Text)
	}
	if gotAuth != "Token dg-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotContentType != "audio/mpeg" {
		t.Errorf("content-type = %q", gotContentType)
	}
	if gotModel != "nova-3" {
		t.Errorf("model = %q", gotModel)
	}
	if string(gotBody) != "mp3-payload" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestBatchTranscribeEmptyChannelsYieldsEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	b := New()
	b.BatchEndpoint = srv.URL
	result, err := b.Transcribe(context.Background(), srv.Client(), "k", provider.Request{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "" {
		t.Errorf("text = %q, want empty", result.Text)
	}
}

func TestBatchTranscribeNon2xxIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"bad credentials"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	b := New()
	b.BatchEndpoint = srv.URL
	_, err := b.Transcribe(context.Background(), srv.Client(), "bad", provider.Request{})
	var remote *provider.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Status != http.StatusForbidden {
		t.Errorf("status = %d", remote.Status)
	}
}
