package frame

import (
	"errors"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// ErrSourceClosed is returned when reading from a closed Source.
var ErrSourceClosed = errors.New("source is closed")

// Source yields frames one at a time.
type Source interface {
	// Next returns the next frame, owned by the caller, or io.EOF when exhausted.
	Next() (gocv.Mat, error)
	Close() error
}

// ReplaySource plays back a fixed sequence of frames.
type ReplaySource struct {
	mu     sync.Mutex
	frames []gocv.Mat
	index  int
	loop   bool
	closed bool
}

// NewReplaySource creates a source over frames. The frames stay owned by the caller.
func NewReplaySource(frames []gocv.Mat, loop bool) *ReplaySource {
	return &ReplaySource{
		frames: frames,
		loop:   loop,
	}
}

// Next returns a clone of the next frame so the originals are never modified.
func (s *ReplaySource) Next() (gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gocv.NewMat(), ErrSourceClosed
	}
	if len(s.frames) == 0 {
		return gocv.NewMat(), io.EOF
	}

	if s.index >= len(s.frames) {
		if !s.loop {
			return gocv.NewMat(), io.EOF
		}
		s.index = 0
	}

	frame := s.frames[s.index].Clone()
	s.index++
	return frame, nil
}

// Reset restarts playback from the beginning.
func (s *ReplaySource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
}

// Close stops playback.
func (s *ReplaySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
