package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeLiveServer speaks just enough of the Deepgram Live protocol to drive
// TranscribeStream: it acknowledges binary audio frames with interim and
// final results and, on CloseStream, emits the finalize-phase segments.
type fakeLiveServer struct {
	t *testing.T

	// perFrameFinal, when non-empty, is sent as a final result after each
	// binary audio frame received during phase 1.
	perFrameFinal string

	// drainFinals are sent one by one after the CloseStream marker, before
	// the server closes the socket.
	drainFinals []string

	gotAuth     string
	gotQuery    map[string]string
	audioFrames int
}

func (f *fakeLiveServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.gotAuth = r.Header.Get("Authorization")
		f.gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			f.gotQuery[k] = r.URL.Query().Get(k)
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			f.t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				f.audioFrames++
				// Interim results must be ignored by the client.
				f.send(ctx, conn, "maybe something", false)
				if f.perFrameFinal != "" {
					f.send(ctx, conn, f.perFrameFinal, true)
				}
				continue
			}
			var control struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &control); err != nil {
				continue
			}
			if control.Type == "CloseStream" {
				for _, text := range f.drainFinals {
					f.send(ctx, conn, text, true)
				}
				conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
		}
	}
}

func (f *fakeLiveServer) send(ctx context.Context, conn *websocket.Conn, text string, final bool) {
	ev := streamEvent{Type: "Results", IsFinal: final}
	ev.Channel.Alternatives = []struct {
		Transcript string `json:"transcript"`
	}{{Transcript: text}}
	payload, _ := json.Marshal(ev)
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func streamSamples(frames ...[]float32) <-chan []float32 {
	ch := make(chan []float32, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch
}

func TestTranscribeStreamCollectsFinalsAcrossBothPhases(t *testing.T) {
	fake := &fakeLiveServer{
		t:             t,
		perFrameFinal: "hello world",
		drainFinals:   []string{"and goodbye"},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	b := New()
	b.StreamEndpoint = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got, err := b.TranscribeStream(ctx, "test-key", streamSamples(make([]float32, 512)), "en")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world and goodbye" {
		t.Errorf("transcript = %q, want %q", got, "hello world and goodbye")
	}
	if fake.gotAuth != "Token test-key" {
		t.Errorf("auth header = %q", fake.gotAuth)
	}
	if fake.gotQuery["language"] != "en" {
		t.Errorf("language query = %q", fake.gotQuery["language"])
	}
	if fake.audioFrames != 1 {
		t.Errorf("server saw %d audio frames, want 1", fake.audioFrames)
	}
}

func TestTranscribeStreamEmptySessionReturnsEmpty(t *testing.T) {
	fake := &fakeLiveServer{t: t}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	b := New()
	b.StreamEndpoint = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got, err := b.TranscribeStream(ctx, "test-key", streamSamples(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("transcript = %q, want empty", got)
	}
}

func TestTranscribeStreamMultipleDrainSegmentsAllCollected(t *testing.T) {
	// Servers may emit several finalized segments while draining; the first
	// one must not short-circuit collection.
	fake := &fakeLiveServer{
		t:           t,
		drainFinals: []string{"first segment", "second segment", "third segment"},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	b := New()
	b.StreamEndpoint = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got, err := b.TranscribeStream(ctx, "test-key", streamSamples(make([]float32, 512), make([]float32, 512)), "")
	if err != nil {
		t.Fatal(err)
	}
	want := "first segment second segment third segment"
	if got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
}

func TestTranscribeStreamDialFailureIsTerminal(t *testing.T) {
	b := New()
	b.StreamEndpoint = "ws://127.0.0.1:1" // nothing listening

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.TranscribeStream(ctx, "k", streamSamples(), ""); err == nil {
		t.Fatal("expected dial error")
	}
}
