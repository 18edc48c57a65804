// Package openairealtime implements the OpenAI Realtime streaming backend:
// base64-wrapped PCM16 text frames over a WebSocket, resampled to
// 24kHz in this stage only, with the shared two-phase finalize lifecycle.
package openairealtime

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jbarlow/vox/pkg/audio"
	"github.com/jbarlow/vox/pkg/logger"
	"github.com/jbarlow/vox/pkg/provider"
)

const (
	endpoint          = "wss://api.openai.com/v1/realtime?intent=transcription"
	realtimeSampleHz  = 24000
	connectTimeout    = 30 * time.Second
	setupTimeout      = 30 * time.Second
	drainMin          = 30 * time.Second
	drainMax          = 120 * time.Second
	transcriptModelID = "gpt-4o-transcribe"
)

// Backend implements provider.StreamingBackend for OpenAI Realtime
// transcription sessions. Endpoint exists so tests can point the backend at
// a local server; empty uses the public API.
type Backend struct {
	Endpoint string
}

// New constructs a Backend.
func New() *Backend { return &Backend{} }

func (b *Backend) endpoint() string {
	if b.Endpoint == "" {
		return endpoint
	}
	return b.Endpoint
}

// SampleRate implements provider.StreamingBackend.
func (b *Backend) SampleRate() int { return audio.TargetSampleRate }

// RequiresKeepalive implements provider.StreamingBackend. OpenAI Realtime
// has no idle-disconnect keepalive requirement like Deepgram's.
func (b *Backend) RequiresKeepalive() bool { return false }

// TranscribeStream dials the Realtime endpoint, configures a transcription
// session, streams resampled PCM16 audio, and applies the two-phase
// finalize protocol shared with Deepgram.
func (b *Backend) TranscribeStream(ctx context.Context, credential string, samples <-chan []float32, language string) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+credential)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.Dial(dialCtx, b.endpoint(), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("openairealtime: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	configured := make(chan struct{})
	var once sync.Once

	var (
		mu          sync.Mutex
		finals      []string
		providerErr string
	)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var ev event
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			switch ev.Type {
			case "session.created", "session.updated":
				once.Do(func() { close(configured) })
			case "conversation.item.input_audio_transcription.completed":
				text := strings.TrimSpace(ev.Transcript)
				if text != "" {
					mu.Lock()
					finals = append(finals, text)
					mu.Unlock()
				}
			case "error":
				// Logical provider error; surfaced to the caller only if
				// it happens before any transcript is collected, per the
				// graceful-degradation-prefers-partial-text policy.
				mu.Lock()
				if len(finals) == 0 && providerErr == "" {
					providerErr = string(msg)
				}
				mu.Unlock()
			}
		}
	}()

	update := sessionUpdate{Type: "session.update"}
	update.Session.Type = "transcription"
	update.Session.Audio.Input.Format.Type = "audio/pcm"
	update.Session.Audio.Input.Format.Rate = realtimeSampleHz
	update.Session.Audio.Input.Transcription.Model = transcriptModelID
	update.Session.TurnDetection = nil
	if language != "" {
		update.Session.Audio.Input.Transcription.Language = language
	}
	payload, _ := json.Marshal(update)
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return "", fmt.Errorf("openairealtime: send session.update: %w", err)
	}

	select {
	case <-configured:
	case <-time.After(setupTimeout):
		return "", fmt.Errorf("openairealtime: session setup timed out")
	case <-readerDone:
		return "", fmt.Errorf("openairealtime: connection closed during setup")
	}

	var totalSamples int
	for chunk := range samples {
		up := linearResampleUp(chunk, audio.TargetSampleRate, realtimeSampleHz)
		totalSamples += len(chunk)
		pcm := toPCM16LE(up)
		msg := audioAppend{Type: "input_audio_buffer.append", Audio: base64.StdEncoding.EncodeToString(pcm)}
		frame, _ := json.Marshal(msg)
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return joinFinals(finals), fmt.Errorf("openairealtime: write: %w", err)
		}
	}

	commit := map[string]string{"type": "input_audio_buffer.commit"}
	cb, _ := json.Marshal(commit)
	_ = conn.Write(ctx, websocket.MessageText, cb)

	audioSecs := float64(totalSamples) / audio.TargetSampleRate
	drain := clampDuration(time.Duration(audioSecs/5*float64(time.Second)), drainMin, drainMax)

	select {
	case <-readerDone:
	case <-time.After(drain):
		logger.Warning(logger.CategoryProvider, "openairealtime: drain timed out after %s, returning partial transcript", drain)
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	if providerErr != "" {
		return joinFinals(finals), &provider.ProviderLogicError{Desc: providerErr}
	}
	return joinFinals(finals), nil
}

func joinFinals(finals []string) string { return strings.TrimSpace(strings.Join(finals, " ")) }

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// linearResampleUp does the in-stage linear-interpolation rate conversion
// this backend needs, distinct from the capture pipeline's resampler.
func linearResampleUp(samples []float32, fromHz, toHz int) []float32 {
	if fromHz == toHz || len(samples) == 0 {
		return samples
	}
	ratio := float64(toHz) / float64(fromHz)
	out := make([]float32, int(float64(len(samples))*ratio))
	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
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

type sessionUpdate struct {
	Type    string `json:"type"`
	Session struct {
		Type  string `json:"type"`
		Audio struct {
			Input struct {
				Format struct {
					Type string `json:"type"`
					Rate int    `json:"rate"`
				} `json:"format"`
				Transcription struct {
					Model    string `json:"model"`
					Language string `json:"language,omitempty"`
				} `json:"transcription"`
			} `json:"input"`
		} `json:"audio"`
		// TurnDetection is always sent as null: the server's turn detection
		// is off, and the whole recording is committed once, after the
		// sample channel closes.
		TurnDetection *struct{} `json:"turn_detection"`
	} `json:"session"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type event struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}
