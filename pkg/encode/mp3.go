// Package encode implements the MP3 encoding stage: f32 @ 16kHz mono
// PCM in, a self-contained CBR 128kbps MP3 byte stream out.
package encode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/viert/lame"

	"github.com/jbarlow/vox/pkg/audio"
)

// ErrEncoderInit is returned when the underlying LAME encoder fails to
// initialize.
var ErrEncoderInit = errors.New("encode: mp3 encoder init failed")

// ErrEncoderFailure is returned on a mid-stream encode failure. No partial
// output is returned alongside it.
var ErrEncoderFailure = errors.New("encode: mp3 encode failed")

const bitrateKbps = 128

// ToMP3 encodes f32 samples at 16kHz mono to a CBR 128kbps MP3 byte stream,
// including the LAME flush tail.
func ToMP3(samples []float32) ([]byte, error) {
	var buf bytes.Buffer
	enc := lame.NewEncoder(&buf)
	if enc == nil {
		return nil, ErrEncoderInit
	}

	enc.SetNumChannels(1)
	enc.SetInSamplerate(audio.TargetSampleRate)
	enc.SetBitrate(bitrateKbps)
	enc.SetMode(lame.MONO)
	enc.SetQuality(0) // 0 = best

	pcm := toPCM16(samples)
	if _, err := enc.Write(pcm); err != nil {
		enc.Close()
		return nil, fmt.Errorf("%w: %v", ErrEncoderFailure, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderFailure, err)
	}

	return buf.Bytes(), nil
}

// toPCM16 clamps to [-1, 1] and scales to signed 16-bit little-endian PCM.
func toPCM16(samples []float32) []byte {
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
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
