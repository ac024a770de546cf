package app

import (
	"math"
	"sync/atomic"
)

// Threshold holds the live confidence threshold. The slider writes it while
// frame callbacks read it, so it is stored atomically.
type Threshold struct {
	bits atomic.Uint64
}

// NewThreshold creates a Threshold holding v.
func NewThreshold(v float64) *Threshold {
	t := &Threshold{}
	t.bits.Store(math.Float64bits(v))
	return t
}

// Load returns the current value.
func (t *Threshold) Load() float64 {
	return math.Float64frombits(t.bits.Load())
}

// Store sets the value. Values outside [0, 1] are rejected with ErrInvalidConfidence.
func (t *Threshold) Store(v float64) error {
	if !ValidConfidence(v) {
		return ErrInvalidConfidence
	}
	t.bits.Store(math.Float64bits(v))
	return nil
}

// ValidConfidence reports whether v is a usable confidence threshold.
func ValidConfidence(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
