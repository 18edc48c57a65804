package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jbarlow/vox/pkg/logger"
)

// SaveToWav writes samples as 16-bit mono PCM at 16kHz, for debug dumps of
// what a chunk actually contained going into a provider or local engine.
func SaveToWav(samples []float32, outputPath string) error {
	logger.Debug(logger.CategoryAudio, "saving audio to wav file: %s", outputPath)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("audio: create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("audio: create wav file: %w", err)
	}
	defer f.Close()

	const (
		numChannels   = 1
		sampleRate    = 16000
		bitsPerSample = 16
	)
	subChunk2Size := len(samples) * 2
	chunkSize := 36 + subChunk2Size
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	writes := []struct {
		v any
	}{
		{[]byte("RIFF")},
		{uint32(chunkSize)},
		{[]byte("WAVE")},
		{[]byte("fmt ")},
		{uint32(16)},
		{uint16(1)},
		{uint16(numChannels)},
		{uint32(sampleRate)},
		{uint32(byteRate)},
		{uint16(blockAlign)},
		{uint16(bitsPerSample)},
		{[]byte("data")},
		{uint32(subChunk2Size)},
	}
	for _, w := range writes {
		if b, ok := w.v.([]byte); ok {
			if _, err := f.Write(b); err != nil {
				return fmt.Errorf("audio: write wav header: %w", err)
			}
			continue
		}
		if err := binary.Write(f, binary.LittleEndian, w.v); err != nil {
			return fmt.Errorf("audio: write wav header: %w", err)
		}
	}

	for _, sample := range samples {
		if err := binary.Write(f, binary.LittleEndian, int16(sample*32767.0)); err != nil {
			return fmt.Errorf("audio: write wav sample: %w", err)
		}
	}

	return nil
}
