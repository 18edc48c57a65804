// Package audio implements the capture, resampling, and voice-activity
// gating stages that turn a sound card into an ordered stream of
// speech-bearing 16 kHz mono f32 frames.
package audio

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/jbarlow/vox/pkg/logger"
)

// Config configures a Capture pipeline.
type Config struct {
	SampleRate      float64 // device input rate; resampled down to 16kHz
	Channels        int
	FramesPerBuffer int
	DeviceName      string // "" selects the system default input device
	Debug           bool
	VAD             VADConfig
	// QueueSize bounds the output channel. When full, the callback drops
	// the newest frame rather than blocking.
	QueueSize int
}

// DefaultConfig returns a reasonable default for speech recognition.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 1024,
		Debug:           false,
		VAD:             DefaultVADConfig(),
		QueueSize:       64,
	}
}

// Capture owns a PortAudio input stream and emits processed frames (resampled
// to 16kHz mono, VAD-gated) on a bounded channel. The audio callback never
// blocks: a full output channel drops the frame and increments a counter
// rather than waiting on a consumer.
type Capture struct {
	config    Config
	stream    *portaudio.Stream
	resampler *Resampler
	vad       *VADGate

	mu          sync.Mutex
	isActive    bool
	initialized bool

	out chan []float32

	dropped      atomic.Uint64
	streamErrors atomic.Uint64
}

// New constructs a Capture using the given configuration. It initializes
// PortAudio as a side effect; Close must be called to release it.
func New(config Config) (*Capture, error) {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.Channels <= 0 {
		config.Channels = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}

	resampler, err := NewResampler(config.SampleRate, config.Channels)
	if err != nil {
		return nil, &ResamplerInitError{Err: err}
	}

	if err := portaudio.Initialize(); err != nil {
		if config.Debug && strings.Contains(err.Error(), "ALSA") {
			logger.Warning(logger.CategoryAudio, "ALSA error initializing PortAudio: %v", err)
		}
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}

	return &Capture{
		config:      config,
		resampler:   resampler,
		vad:         NewVADGate(config.VAD),
		initialized: true,
	}, nil
}

// Frames returns the channel of accepted, 16kHz mono, VAD-gated frames. It
// is only valid after Start and is closed by Stop.
func (c *Capture) Frames() <-chan []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

// DroppedFrames reports the backpressure-drop and stream-error counters;
// drops are surfaced as rate-limited warnings rather than blocking the
// callback.
func (c *Capture) DroppedFrames() (dropped, streamErrors uint64) {
	return c.dropped.Load(), c.streamErrors.Load()
}

// IsActive reports whether the stream is currently open.
func (c *Capture) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isActive
}

// Start opens the input stream (by name if DeviceName is set, else the
// system default) and begins delivering frames on the channel returned by
// Frames.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isActive {
		return fmt.Errorf("audio: capture already active")
	}

	device, err := c.selectDevice()
	if err != nil {
		return fmt.Errorf("audio: select device: %w", err)
	}

	params := portaudio.HighLatencyParameters(device, nil)
	params.Input.Channels = c.config.Channels
	params.SampleRate = c.config.SampleRate
	params.FramesPerBuffer = c.config.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, c.processAudio)
	if err != nil {
		return fmt.Errorf("audio: open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("audio: start stream: %w", err)
	}

	c.out = make(chan []float32, c.config.QueueSize)
	c.stream = stream
	c.isActive = true
	return nil
}

// Device describes one input device a shell can offer for selection.
type Device struct {
	Name       string
	Channels   int
	SampleRate float64
	IsDefault  bool
}

// ListDevices enumerates the host's input-capable devices. It initializes
// and terminates PortAudio itself, so it can be called before any Capture
// exists (e.g. from a --list-devices flag).
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	defaultDev, _ := portaudio.DefaultInputDevice()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}

	var out []Device
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			IsDefault:  defaultDev != nil && d.Name == defaultDev.Name,
		})
	}
	return out, nil
}

// selectDevice finds the named input device, or the default input device
// when DeviceName is empty.
func (c *Capture) selectDevice() (*portaudio.DeviceInfo, error) {
	if c.config.DeviceName == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.Name == c.config.DeviceName {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio: input device %q not found", c.config.DeviceName)
}

// processAudio is the PortAudio callback. It must never block: resampling
// and VAD are cheap, bounded per-call operations, and the final send is
// non-blocking with a drop-and-count fallback.
func (c *Capture) processAudio(in []float32, _ []float32) {
	resampled, err := c.resampler.Process(in)
	if err != nil {
		n := c.streamErrors.Add(1)
		if n == 1 || n%1000 == 0 {
			logger.Warning(logger.CategoryAudio, "capture resample error (count %d): %v", n, err)
		}
		return
	}

	accepted := c.vad.Process(resampled)
	if len(accepted) == 0 {
		return
	}

	select {
	case c.out <- accepted:
	default:
		n := c.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			logger.Warning(logger.CategoryAudio, "capture backpressure: dropped %d frame(s)", n)
		}
	}
}

// Stop terminates the stream, flushes the VAD's buffered partial window
// (buffered preroll is not emitted), and closes the
// output channel. Calling Stop twice is a no-op after the first call.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return nil
	}

	var stopErr error
	if c.stream != nil {
		stopErr = c.stream.Stop()
		c.stream.Close()
		c.stream = nil
	}

	if tail := c.vad.Flush(); len(tail) > 0 {
		select {
		case c.out <- tail:
		default:
			c.dropped.Add(1)
		}
	}
	close(c.out)

	c.isActive = false
	c.vad.Reset()
	return stopErr
}

// Close releases PortAudio. It must be called exactly once, after the
// Capture is no longer used.
func (c *Capture) Close() error {
	c.mu.Lock()
	active := c.isActive
	c.mu.Unlock()
	if active {
		c.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		c.initialized = false
		return portaudio.Terminate()
	}
	return nil
}

// CalculateLevel computes the RMS level of a buffer of samples, used by
// shells to drive a live level meter.
func CalculateLevel(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	mean := sumSquares / float64(len(samples))
	return float32(math.Sqrt(mean))
}
