package app

// Recorder is the capture pipeline contract the Orchestrator depends on,
// narrowed to what it needs to sequence a recording. pkg/audio.Capture
// satisfies this directly; tests substitute a fake to exercise the state
// machine without opening a real audio device.
type Recorder interface {
	// Start opens the input stream and begins delivering frames.
	Start() error
	// Frames returns the channel of accepted, resampled, VAD-gated
	// frames. Valid only after Start; closed by Stop.
	Frames() <-chan []float32
	// Stop closes the stream, flushes any buffered tail, and closes the
	// Frames channel. Calling Stop twice is a no-op after the first call.
	Stop() error
	// Close releases the underlying audio host resources. Called once the
	// recorder is no longer needed, after Stop.
	Close() error
}

// RecorderFactory constructs a Recorder for one recording session, given
// the microphone device name and VAD configuration to use. The orchestrator
// passes vadEnabled=false for realtime providers, which receive the whole
// ungated stream.
type RecorderFactory func(deviceName string, vadEnabled bool, vadThreshold float32) (Recorder, error)
