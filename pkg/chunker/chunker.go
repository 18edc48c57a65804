// Package chunker implements the progressive chunker: it consumes a
// stream of accepted audio frames and emits overlap-prefixed AudioChunks
// sized for upload to a batch transcription backend or a local engine.
package chunker

import (
	"github.com/jbarlow/vox/pkg/audio"
)

// OverlapSamples is the default overlap prefix duration, 2 seconds at 16kHz.
const OverlapSamples = 2 * audio.TargetSampleRate

// Config bounds chunk sizes: min <= target <= max.
type Config struct {
	TargetDurationSecs float64
	MinDurationSecs    float64
	MaxDurationSecs    float64
	VADAware           bool
}

// DefaultConfig returns the recommended 60/90/120 second budget.
func DefaultConfig() Config {
	return Config{
		TargetDurationSecs: 90,
		MinDurationSecs:    60,
		MaxDurationSecs:    120,
		VADAware:           true,
	}
}

func (c Config) targetSamples() int { return int(c.TargetDurationSecs * audio.TargetSampleRate) }
func (c Config) minSamples() int    { return int(c.MinDurationSecs * audio.TargetSampleRate) }
func (c Config) maxSamples() int    { return int(c.MaxDurationSecs * audio.TargetSampleRate) }

// Chunk is the unit emitted downstream: an indexed run of 16kHz mono
// samples, optionally prefixed by overlap from the previous chunk.
type Chunk struct {
	Index              int
	Samples            []float32
	HasLeadingOverlap  bool
	StartOffsetSamples int // offset of the non-overlap content in the full stream
}

// SilenceDetector reports whether the most recently appended frame looks
// like >=100ms of silence, letting the chunker cut chunks on a word
// boundary instead of mid-utterance. There is no built-in detector: with a
// nil SilenceDetector the chunker only cuts at the target and maximum sizes.
type SilenceDetector func(recentFrame []float32) bool

// Chunker turns a frame channel into a chunk channel.
type Chunker struct {
	cfg      Config
	silence  SilenceDetector
	buf      []float32
	index    int
	consumed int       // samples emitted as chunk content so far
	prevTail []float32 // last OverlapSamples of the previous emission
}

// New constructs a Chunker. A nil SilenceDetector disables VAD-aware early
// cuts even if cfg.VADAware is set.
func New(cfg Config, silence SilenceDetector) *Chunker {
	return &Chunker{cfg: cfg, silence: silence}
}

// Run consumes in until it closes, sending Chunks to the returned channel,
// which is closed once the tail chunk (if any) has been emitted.
func (c *Chunker) Run(in <-chan []float32) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for frame := range in {
			c.buf = append(c.buf, frame...)

			if len(c.buf) >= c.cfg.maxSamples() {
				c.emit(out, false)
				continue
			}

			if len(c.buf) >= c.cfg.targetSamples() {
				c.emit(out, false)
				continue
			}

			if c.cfg.VADAware && c.silence != nil && len(c.buf) >= c.cfg.minSamples() && c.silence(frame) {
				c.emit(out, true)
			}
		}
		if len(c.buf) > 0 {
			c.emitTail(out)
		}
	}()
	return out
}

// emit cuts the current buffer into a chunk. vadCut indicates the cut was
// triggered by detected silence rather than reaching target/max size, which
// means the overlap prefix is omitted.
func (c *Chunker) emit(out chan<- Chunk, vadCut bool) {
	samples := c.buf
	c.buf = nil
	c.send(out, samples, vadCut)
}

func (c *Chunker) emitTail(out chan<- Chunk) {
	c.send(out, c.buf, false)
	c.buf = nil
}

func (c *Chunker) send(out chan<- Chunk, samples []float32, vadCut bool) {
	hasOverlap := c.index > 0 && !vadCut && len(c.prevTail) > 0
	chunkSamples := samples
	if hasOverlap {
		chunkSamples = make([]float32, 0, len(c.prevTail)+len(samples))
		chunkSamples = append(chunkSamples, c.prevTail...)
		chunkSamples = append(chunkSamples, samples...)
	}

	out <- Chunk{
		Index:              c.index,
		Samples:            chunkSamples,
		HasLeadingOverlap:  hasOverlap,
		StartOffsetSamples: c.consumed,
	}
	c.index++
	c.consumed += len(samples)

	if len(samples) >= OverlapSamples {
		tail := make([]float32, OverlapSamples)
		copy(tail, samples[len(samples)-OverlapSamples:])
		c.prevTail = tail
	} else {
		c.prevTail = nil
	}
}
