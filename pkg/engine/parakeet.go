//go:build cgo && sherpa_onnx

package engine

import (
	"fmt"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/jbarlow/vox/pkg/audio"
)

// parakeetChunkSamples and parakeetOverlapSamples mirror the empirically
// tested ONNX Runtime memory ceiling for long audio: Parakeet handles up to
// ~90s comfortably, so longer recordings are split with a 1s overlap.
const (
	parakeetChunkSamples   = 90 * audio.TargetSampleRate
	parakeetOverlapSamples = 1 * audio.TargetSampleRate
)

// ParakeetEngine wraps sherpa-onnx-go's offline recognizer as an Engine.
type ParakeetEngine struct {
	recognizer *sherpa.OfflineRecognizer
}

// ParakeetLoader constructs a Loader for the Parakeet engine kind. path is
// the model directory containing the ONNX files.
func ParakeetLoader() Loader {
	return func(path string) (Engine, error) {
		config := sherpa.OfflineRecognizerConfig{}
		config.ModelConfig.Transducer.Encoder = path + "/encoder.onnx"
		config.ModelConfig.Transducer.Decoder = path + "/decoder.onnx"
		config.ModelConfig.Transducer.Joiner = path + "/joiner.onnx"
		config.ModelConfig.Tokens = path + "/tokens.txt"
		config.ModelConfig.ModelType = "nemo_transducer"
		config.FeatureConfig.SampleRate = audio.TargetSampleRate
		config.FeatureConfig.FeatureDim = 80

		recognizer := sherpa.NewOfflineRecognizer(&config)
		if recognizer == nil {
			return nil, fmt.Errorf("parakeet: failed to create recognizer from %s", path)
		}
		return &ParakeetEngine{recognizer: recognizer}, nil
	}
}

// Transcribe implements Engine, chunking long audio per the ONNX memory
// ceiling noted above and joining results with a space.
func (p *ParakeetEngine) Transcribe(samples []float32) (string, error) {
	if len(samples) <= parakeetChunkSamples {
		return p.transcribeChunk(samples), nil
	}

	var parts []string
	start := 0
	for start < len(samples) {
		end := start + parakeetChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		parts = append(parts, p.transcribeChunk(samples[start:end]))
		start += parakeetChunkSamples - parakeetOverlapSamples
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func (p *ParakeetEngine) transcribeChunk(samples []float32) string {
	stream := sherpa.NewOfflineStream(p.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(audio.TargetSampleRate, samples)
	p.recognizer.Decode(stream)
	result := sherpa.GetOfflineStreamResult(stream)
	defer sherpa.DeleteOfflineRecognizerResult(result)
	return strings.TrimSpace(result.Text)
}

// Close implements Engine.
func (p *ParakeetEngine) Close() error {
	sherpa.DeleteOfflineRecognizer(p.recognizer)
	return nil
}

var _ Engine = (*ParakeetEngine)(nil)
