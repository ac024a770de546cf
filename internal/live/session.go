package live

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"
)

// ErrSessionClosed is returned by Session.Handle after the session has ended.
var ErrSessionClosed = errors.New("session closed")

// Transport identifies how frames reach a session.
type Transport string

const (
	TransportWebRTC    Transport = "webrtc"
	TransportWebSocket Transport = "websocket"
)

// FrameHandler turns one encoded frame into one encoded annotated frame.
type FrameHandler interface {
	HandlePayload(payload []byte) ([]byte, error)
}

// Info is a snapshot of a session.
type Info struct {
	ID           string     `json:"id"`
	Transport    Transport  `json:"transport"`
	ICEDegraded  bool       `json:"ice_degraded"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Frames       int64      `json:"frames"`
	FailedFrames int64      `json:"failed_frames"`
}

// Session is one live stream from a browser.
type Session struct {
	id          string
	transport   Transport
	iceDegraded bool
	startedAt   time.Time
	handler     FrameHandler

	pc *webrtc.PeerConnection

	frames atomic.Int64
	failed atomic.Int64

	mu      sync.Mutex
	endedAt time.Time
	done    chan struct{}
}

func newSession(id string, transport Transport, degraded bool, handler FrameHandler) *Session {
	return &Session{
		id:          id,
		transport:   transport,
		iceDegraded: degraded,
		startedAt:   time.Now(),
		handler:     handler,
		done:        make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Transport returns how frames reach the session.
func (s *Session) Transport() Transport { return s.transport }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Handle processes one frame. Failed frames are counted and returned as errors;
// the session stays open.
func (s *Session) Handle(payload []byte) ([]byte, error) {
	select {
	case <-s.done:
		return nil, ErrSessionClosed
	default:
	}

	s.frames.Add(1)
	out, err := s.handler.HandlePayload(payload)
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}
	return out, nil
}

// Info returns a snapshot of the session counters.
func (s *Session) Info() Info {
	info := Info{
		ID:           s.id,
		Transport:    s.transport,
		ICEDegraded:  s.iceDegraded,
		StartedAt:    s.startedAt,
		Frames:       s.frames.Load(),
		FailedFrames: s.failed.Load(),
	}

	s.mu.Lock()
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		info.EndedAt = &ended
	}
	s.mu.Unlock()

	return info
}

// end marks the session ended. It reports false if it already was.
func (s *Session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.endedAt.IsZero() {
		return false
	}
	s.endedAt = time.Now()
	close(s.done)
	return true
}
