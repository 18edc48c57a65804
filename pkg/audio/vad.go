package audio

import "sync"

// VADFrameSize is the fixed window size the gate classifies, in samples, at
// 16 kHz (32 ms).
const VADFrameSize = 512

// DefaultVADThreshold is the default speech-probability cutoff.
const DefaultVADThreshold = 0.5

// VADConfig configures a VADGate.
type VADConfig struct {
	Enabled   bool
	Threshold float32 // probability >= Threshold is judged speech

	// HangoverWindows is how many trailing windows are emitted after a
	// speech->silence transition, to avoid clipping word tails. Default
	// covers ~300ms (about 9 windows at 512 samples/16kHz).
	HangoverWindows int

	// PrerollWindows is how many leading (previously silent) windows are
	// emitted on a silence->speech transition, to avoid clipping word
	// heads. Default covers ~200ms (about 6 windows).
	PrerollWindows int

	// Classify scores one 512-sample window's speech probability. Tests
	// and callers without a real VAD model can supply an RMS-threshold
	// stand-in; production wiring supplies a trained classifier.
	Classify func(window []float32) float32
}

// DefaultVADConfig returns sane defaults with an RMS-based classifier.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Enabled:         true,
		Threshold:       DefaultVADThreshold,
		HangoverWindows: 9,
		PrerollWindows:  6,
		Classify:        rmsClassify,
	}
}

// rmsClassify is a simple energy-based stand-in classifier: it maps RMS
// level in [0,1] directly to a probability, saturating at 1.
func rmsClassify(window []float32) float32 {
	level := CalculateLevel(window)
	p := level * 4 // empirically chosen gain so quiet speech crosses 0.5
	if p > 1 {
		p = 1
	}
	return p
}

// VADGate buffers arriving samples into fixed 512-sample windows, classifies
// each, and emits only windows judged speech (plus hangover/preroll). It is
// single-writer: callers must invoke Process sequentially from one thread
// (the audio capture callback).
type VADGate struct {
	cfg VADConfig

	mu sync.Mutex

	partial []float32 // samples not yet forming a full window

	preroll      [][]float32 // ring buffer of recent silent windows
	inSpeech     bool
	hangoverLeft int
}

// NewVADGate constructs a gate. If cfg.Classify is nil, DefaultVADConfig's
// classifier is used.
func NewVADGate(cfg VADConfig) *VADGate {
	if cfg.Classify == nil {
		cfg.Classify = rmsClassify
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultVADThreshold
	}
	return &VADGate{cfg: cfg}
}

// IsEnabled reports whether the gate is actively filtering.
func (g *VADGate) IsEnabled() bool { return g.cfg.Enabled }

// Process appends samples and returns any windows that should pass
// downstream (speech windows, plus hangover/preroll context). When disabled,
// it passes all input through unchanged.
func (g *VADGate) Process(samples []float32) []float32 {
	if !g.cfg.Enabled {
		return samples
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.partial = append(g.partial, samples...)

	var out []float32
	for len(g.partial) >= VADFrameSize {
		window := g.partial[:VADFrameSize]
		g.partial = g.partial[VADFrameSize:]
		out = append(out, g.classifyWindow(window)...)
	}
	return out
}

// classifyWindow runs the classifier on one window and applies
// hangover/preroll policy. Caller must hold g.mu.
func (g *VADGate) classifyWindow(window []float32) []float32 {
	prob := g.cfg.Classify(window)
	isSpeech := prob >= g.cfg.Threshold

	switch {
	case isSpeech && !g.inSpeech:
		// silence -> speech: emit preroll then this window.
		g.inSpeech = true
		g.hangoverLeft = g.cfg.HangoverWindows
		var out []float32
		for _, w := range g.preroll {
			out = append(out, w...)
		}
		g.preroll = g.preroll[:0]
		out = append(out, window...)
		return out

	case isSpeech && g.inSpeech:
		g.hangoverLeft = g.cfg.HangoverWindows
		return append([]float32(nil), window...)

	case !isSpeech && g.inSpeech:
		// speech -> silence: keep emitting hangover.
		g.hangoverLeft--
		if g.hangoverLeft < 0 {
			g.inSpeech = false
			g.pushPreroll(window)
			return nil
		}
		return append([]float32(nil), window...)

	default: // !isSpeech && !g.inSpeech
		g.pushPreroll(window)
		return nil
	}
}

func (g *VADGate) pushPreroll(window []float32) {
	buf := append([]float32(nil), window...)
	g.preroll = append(g.preroll, buf)
	if len(g.preroll) > g.cfg.PrerollWindows {
		g.preroll = g.preroll[len(g.preroll)-g.cfg.PrerollWindows:]
	}
}

// Reset clears all buffered/hangover/preroll state.
func (g *VADGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.partial = nil
	g.preroll = nil
	g.inSpeech = false
	g.hangoverLeft = 0
}

// Flush returns any buffered speech window left at stream end. A trailing
// partial window shorter than VADFrameSize is classified as-is rather than
// dropped, since stream end is the only chance to emit it.
func (g *VADGate) Flush() []float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.partial) == 0 {
		return nil
	}
	window := g.partial
	g.partial = nil
	if !g.cfg.Enabled {
		return window
	}
	prob := g.cfg.Classify(window)
	if prob >= g.cfg.Threshold || g.inSpeech {
		return window
	}
	return nil
}
