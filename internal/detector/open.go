package detector

import "fmt"

// Backend names accepted by Open.
const (
	BackendONNX        = "onnx"
	BackendUltralytics = "ultralytics"
	BackendMock        = "mock"
)

// Open loads the weights at path with the named backend.
// The returned detector is safe for concurrent use.
func Open(backend, path string, config Config) (Detector, error) {
	switch backend {
	case BackendONNX, "":
		d, err := NewONNXDetector(path, config)
		if err != nil {
			return nil, err
		}
		return Serialized(d), nil
	case BackendUltralytics:
		return NewSubprocessDetector(path, config)
	case BackendMock:
		return NewMockDetector(), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", backend)
	}
}
