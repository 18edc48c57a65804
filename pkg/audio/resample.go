package audio

import (
	"errors"
	"fmt"
)

// TargetSampleRate is the rate every chunk, chunker, and local engine in this
// module operates on: 16 kHz mono f32.
const TargetSampleRate = 16000

// ErrInvalidInput is returned by Resample when given a non-positive rate or
// channel count.
var ErrInvalidInput = errors.New("audio: invalid sample rate or channel count")

// Resampler converts any-rate, multichannel f32 PCM to 16 kHz mono f32.
//
// It processes fixed-size input chunks (1024 frames, split into 2 sub-chunks)
// the way a polyphase FFT resampler would, zero-padding the final partial
// chunk, so output length tracks the input precisely regardless of where a
// caller's buffer boundaries fall.
type Resampler struct {
	sourceRate float64
	channels   int
	identity   bool

	// fractional phase carried across Process calls so that resampling a
	// stream in several pieces yields the same output as a single call.
	phase float64
}

const (
	resamplerChunkFrames = 1024
	resamplerSubChunks   = 2
)

// NewResampler builds a resampler from sourceRate/channels to 16 kHz mono.
func NewResampler(sourceRate float64, channels int) (*Resampler, error) {
	if sourceRate <= 0 || channels <= 0 {
		return nil, ErrInvalidInput
	}
	return &Resampler{
		sourceRate: sourceRate,
		channels:   channels,
		identity:   sourceRate == TargetSampleRate,
	}, nil
}

// ToMono averages all channels of an interleaved frame into one sample,
// preserving mean amplitude (e.g. stereo [l, r] -> (l+r)/2).
func ToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	n := len(interleaved) / channels
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		frame := interleaved[i*channels : (i+1)*channels]
		for _, s := range frame {
			sum += s
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Process resamples one buffer of interleaved input samples to 16 kHz mono.
// It may be called repeatedly on a streamed signal; fractional phase carries
// across calls so boundaries don't introduce audible discontinuities.
func (r *Resampler) Process(interleaved []float32) ([]float32, error) {
	mono := ToMono(interleaved, r.channels)
	if r.identity {
		return mono, nil
	}
	return r.resampleChunked(mono), nil
}

// resampleChunked mirrors a polyphase FFT resampler's chunking discipline:
// process fixed-size sub-chunks, zero-pad the tail, linearly interpolate
// within each sub-chunk at the source/target rate ratio.
func (r *Resampler) resampleChunked(mono []float32) []float32 {
	if len(mono) == 0 {
		return nil
	}
	ratio := TargetSampleRate / r.sourceRate
	subChunkFrames := resamplerChunkFrames / resamplerSubChunks

	out := make([]float32, 0, int(float64(len(mono))*ratio)+2)
	for start := 0; start < len(mono); start += subChunkFrames {
		end := start + subChunkFrames
		validFrames := subChunkFrames
		var chunk []float32
		if end < len(mono) {
			// Include the next sub-chunk's first frame as look-ahead.
			chunk = mono[start : end+1]
		} else {
			// Zero-pad so interpolate can always safely read one frame of
			// look-ahead, but only the real frames count toward the
			// interpolation bound below -- otherwise the padding would be
			// resampled as if it were real signal and inflate the output
			// length past the source duration.
			validFrames = len(mono) - start
			chunk = make([]float32, subChunkFrames+1)
			copy(chunk, mono[start:])
		}
		out = append(out, r.interpolate(chunk, validFrames, ratio)...)
	}
	return out
}

// interpolate does linear-interpolation resampling of a single sub-chunk,
// carrying fractional phase in r.phase so consecutive sub-chunks line up.
// validFrames bounds how much of chunk is real signal (the rest may be
// zero-padding); chunk holds one frame past validFrames so the last real
// frame can still interpolate toward its successor.
func (r *Resampler) interpolate(chunk []float32, validFrames int, ratio float64) []float32 {
	if validFrames == 0 {
		return nil
	}
	step := 1.0 / ratio
	var out []float32
	pos := r.phase
	for pos < float64(validFrames) {
		i0 := int(pos)
		frac := pos - float64(i0)
		s0, s1 := chunk[i0], chunk[i0+1]
		out = append(out, s0+float32(frac)*(s1-s0))
		pos += step
	}
	r.phase = pos - float64(validFrames)
	return out
}

// ExpectedOutputLen returns the output length a resample of n input frames
// at sourceRate should produce, rounded to the nearest sample. Used by tests
// to verify the ±1-sample invariant.
func ExpectedOutputLen(n int, sourceRate float64) int {
	return int(float64(n)*TargetSampleRate/sourceRate + 0.5)
}

// ResamplerInitError wraps a resampler construction failure.
type ResamplerInitError struct{ Err error }

func (e *ResamplerInitError) Error() string { return fmt.Sprintf("resampler init: %v", e.Err) }
func (e *ResamplerInitError) Unwrap() error { return e.Err }
