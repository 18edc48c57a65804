//go:build !(cgo && sherpa_onnx)

package engine

import "errors"

// ErrParakeetUnavailable is returned when the binary was built without the
// cgo+sherpa_onnx tags that pull in the real sherpa-onnx-go bindings.
var ErrParakeetUnavailable = errors.New("engine: parakeet support not compiled in (build with -tags cgo,sherpa_onnx)")

// ParakeetLoader returns a Loader that always fails when sherpa-onnx was
// not compiled in.
func ParakeetLoader() Loader {
	return func(path string) (Engine, error) {
		return nil, ErrParakeetUnavailable
	}
}
