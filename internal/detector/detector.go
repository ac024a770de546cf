// Package detector provides the hand-sign detector abstraction and its backends.
package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when Detect receives a nil or empty frame.
var ErrEmptyFrame = errors.New("frame is empty")

// ErrInvalidConfidence is returned when a confidence outside [0, 1] is passed to Detect.
var ErrInvalidConfidence = errors.New("confidence must be in [0, 1]")

// Detector defines the interface for sign detection implementations.
//
// Frames are BGR. The confidence threshold is a per-call argument; implementations
// must not keep it as instance state so concurrent callers never race on it.
type Detector interface {
	// Detect runs the model on frame and returns the detections scoring at least confidence.
	// Zero detections is a valid result, not an error.
	Detect(frame *gocv.Mat, confidence float64) (*Result, error)

	// Labels returns the model's class label table indexed by class id.
	Labels() []string

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the detector backends.
type Config struct {
	// InputSize is the square network input resolution (default: 640).
	InputSize int

	// IoU is the overlap threshold used by non-maximum suppression (default: 0.45).
	IoU float64

	// Labels maps class ids to display names. Nil means the SIBI alphabet.
	Labels []string

	// Python is the interpreter used by the subprocess backend (default: python3).
	Python string

	// Script is the worker script used by the subprocess backend.
	Script string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputSize: 640,
		IoU:       0.45,
		Labels:    SIBIAlphabet(),
	}
}

func validConfidence(c float64) bool {
	return c >= 0 && c <= 1
}
