package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It returns the configured detections whose score reaches the requested confidence.
type MockDetector struct {
	mu         sync.RWMutex
	detections []Detection
	labels     []string
	err        error
	panicMsg   string
	calls      int
	closed     bool
}

// NewMockDetector creates a new MockDetector instance with the SIBI label table.
func NewMockDetector() *MockDetector {
	return &MockDetector{labels: SIBIAlphabet()}
}

// SetDetections sets the candidate detections returned by Detect.
func (m *MockDetector) SetDetections(detections []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = detections
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPanic makes Detect panic with msg. An empty msg disables it.
func (m *MockDetector) SetPanic(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Detect returns the pre-configured detections at or above confidence, or the configured error.
func (m *MockDetector) Detect(frame *gocv.Mat, confidence float64) (*Result, error) {
	m.mu.Lock()
	m.calls++
	panicMsg := m.panicMsg
	err := m.err
	candidates := m.detections
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if err != nil {
		return nil, err
	}
	if !validConfidence(confidence) {
		return nil, ErrInvalidConfidence
	}

	result := &Result{Detections: []Detection{}}
	for _, d := range candidates {
		if d.Score >= confidence {
			result.Detections = append(result.Detections, d)
		}
	}
	return result, nil
}

// Labels returns the label table.
func (m *MockDetector) Labels() []string {
	return m.labels
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// LetterDetection returns a preset detection of letter at the given box and score.
func LetterDetection(letter rune, score float64, box image.Rectangle) Detection {
	id := int(letter - 'A')
	return Detection{
		ClassID: id,
		Label:   labelFor(SIBIAlphabet(), id),
		Score:   score,
		Box:     box,
	}
}
