// Package deepgram implements the Deepgram batch and streaming backends.
// The streaming backend follows the shared two-phase finalize
// pattern: collect finals while samples are flowing, send a CloseStream
// marker when the sample channel closes, then keep collecting until a
// dynamic drain timeout or the socket closes. No event type ends the drain
// early.
package deepgram

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/jbarlow/vox/pkg/logger"
	"github.com/jbarlow/vox/pkg/provider"
)

const (
	streamEndpoint = "wss://api.deepgram.com/v1/listen"
	batchEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel   = "nova-3"
	sampleRateHz   = 16000
	keepaliveEvery = 4 * time.Second
	connectTimeout = 30 * time.Second
	drainMin       = 5 * time.Second
	drainMax       = 60 * time.Second
)

// Backend implements both provider.BatchBackend (pre-recorded REST) and
// provider.StreamingBackend (live WebSocket) for Deepgram. The endpoint
// fields exist so tests can point the backend at a local server; empty
// values use the public API.
type Backend struct {
	Model          string
	StreamEndpoint string
	BatchEndpoint  string
}

// New constructs a Deepgram backend with the nova-3 default model.
func New() *Backend { return &Backend{Model: defaultModel} }

func (b *Backend) streamEndpoint() string {
	if b.StreamEndpoint == "" {
		return streamEndpoint
	}
	return b.StreamEndpoint
}

func (b *Backend) batchEndpoint() string {
	if b.BatchEndpoint == "" {
		return batchEndpoint
	}
	return b.BatchEndpoint
}

func (b *Backend) model() string {
	if b.Model == "" {
		return defaultModel
	}
	return b.Model
}

// Transcribe implements provider.BatchBackend against Deepgram's
// pre-recorded /listen endpoint.
func (b *Backend) Transcribe(ctx context.Context, client *http.Client, credential string, req provider.Request) (provider.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	u, _ := url.Parse(b.batchEndpoint())
	q := u.Query()
	q.Set("model", b.model())
	q.Set("smart_format", "true")
	if req.Language != "" {
		q.Set("language", req.Language)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(req.AudioBytes))
	if err != nil {
		return provider.Result{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", req.MimeType)
	httpReq.Header.Set("Authorization", "Token "+credential)

	if req.ProgressSink != nil {
		req.ProgressSink("upload began")
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return provider.Result{}, fmt.Errorf("deepgram: transport: %w", err)
	}
	defer resp.Body.Close()
	if req.ProgressSink != nil {
		req.ProgressSink("awaiting response")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Result{}, &provider.RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.Result{}, &provider.DecodeError{Err: err}
	}
	text := ""
	if len(parsed.Results.Channels) > 0 && len(parsed.Results.Channels[0].Alternatives) > 0 {
		text = parsed.Results.Channels[0].Alternatives[0].Transcript
	}
	return provider.Result{Text: text}, nil
}

type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// SampleRate implements provider.StreamingBackend.
func (b *Backend) SampleRate() int { return sampleRateHz }

// RequiresKeepalive implements provider.StreamingBackend.
func (b *Backend) RequiresKeepalive() bool { return true }

// TranscribeStream implements provider.StreamingBackend's two-phase finalize
// lifecycle: connect, configure via URL query params, run the sender, reader
// and keepalive loops concurrently, then finalize, drain, and close.
func (b *Backend) TranscribeStream(ctx context.Context, credential string, samples <-chan []float32, language string) (string, error) {
	u := buildStreamURL(b.streamEndpoint(), b.model(), language)

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+credential)
	conn, _, err := websocket.Dial(dialCtx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var (
		mu     sync.Mutex
		finals []string
	)
	closeMarkerSent := make(chan struct{})
	keepaliveCancel := make(chan struct{})
	var totalSamples int

	var g errgroup.Group

	// reader: phase 1 collects finals until the close marker is sent;
	// phase 2 continues until drain timeout or socket close; no event type
	// ends it.
	g.Go(func() error {
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return nil
			}
			var ev streamEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			if ev.Type == "Results" && ev.IsFinal && len(ev.Channel.Alternatives) > 0 {
				text := strings.TrimSpace(ev.Channel.Alternatives[0].Transcript)
				if text != "" {
					mu.Lock()
					finals = append(finals, text)
					mu.Unlock()
				}
			}
		}
	})

	// keepalive: periodic JSON ping while the audio is flowing.
	g.Go(func() error {
		ticker := time.NewTicker(keepaliveEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`))
			case <-closeMarkerSent:
				return nil
			case <-keepaliveCancel:
				return nil
			}
		}
	})

	// sender: writes PCM16 binary frames until samples closes, then sends
	// the close marker.
	for chunk := range samples {
		totalSamples += len(chunk)
		pcm := toPCM16LE(chunk)
		if err := conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
			close(keepaliveCancel)
			return joinFinals(finals), fmt.Errorf("deepgram: write: %w", err)
		}
	}
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	close(closeMarkerSent)

	audioSecs := float64(totalSamples) / sampleRateHz
	drain := clampDuration(time.Duration(audioSecs/5*float64(time.Second)), drainMin, drainMax)

	readerDone := make(chan struct{})
	go func() {
		g.Wait()
		close(readerDone)
	}()

	select {
	case <-readerDone:
	case <-time.After(drain):
		logger.Warning(logger.CategoryProvider, "deepgram: drain timed out after %s, returning partial transcript", drain)
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return joinFinals(finals), nil
}

func joinFinals(finals []string) string {
	return strings.TrimSpace(strings.Join(finals, " "))
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

func buildStreamURL(endpoint, model, language string) string {
	u, _ := url.Parse(endpoint)
	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRateHz))
	q.Set("channels", "1")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func toPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s >= 0 {
			v = int16(s * 32767)
		} else {
			v = int16(s * 32768)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

type streamEvent struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}
