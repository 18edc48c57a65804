//go:build !(cgo && whisper_go)

package engine

import "errors"

// ErrWhisperUnavailable is returned when the binary was built without the
// cgo+whisper_go tags that pull in the real whisper.cpp bindings.
var ErrWhisperUnavailable = errors.New("engine: whisper support not compiled in (build with -tags cgo,whisper_go)")

// WhisperLoader returns a Loader that always fails, matching the teacher's
// placeholder-transcriber fallback so the rest of the engine cache, the
// registry, and the orchestrator can be built and tested without a cgo
// toolchain.
func WhisperLoader(language string) Loader {
	return func(path string) (Engine, error) {
		return nil, ErrWhisperUnavailable
	}
}
