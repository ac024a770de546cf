package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// serialized guards a non-reentrant detector with a mutex.
type serialized struct {
	mu    sync.Mutex
	inner Detector
}

// Serialized wraps d so that at most one Detect or Close runs at a time.
// Use it for backends that are not safe for concurrent invocation.
func Serialized(d Detector) Detector {
	if s, ok := d.(*serialized); ok {
		return s
	}
	return &serialized{inner: d}
}

func (s *serialized) Detect(frame *gocv.Mat, confidence float64) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Detect(frame, confidence)
}

func (s *serialized) Labels() []string {
	return s.inner.Labels()
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}
