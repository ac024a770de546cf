// Package live manages live inference sessions: WebRTC peer connections whose
// data channel carries JPEG frames, and sessions attached by other transports.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/ice"
	"github.com/sibisee/sibisee/internal/logger"
)

// ChannelLabel is the data channel the browser opens for frames.
const ChannelLabel = "frames"

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPeerEnded is returned by Open when the peer connection failed or closed
	// before the answer was ready.
	ErrPeerEnded = errors.New("peer connection ended during negotiation")
)

// ICEResolver supplies the ICE servers for new peer connections.
type ICEResolver interface {
	Servers(ctx context.Context) ice.Resolution
}

// Recorder persists session lifecycles.
type Recorder interface {
	SessionStarted(info Info) error
	SessionEnded(info Info) error
}

// Config holds Manager configuration.
type Config struct {
	// Handler processes every frame of every session.
	Handler FrameHandler

	// ICE resolves ICE servers. Nil means no ICE servers (host candidates only).
	ICE ICEResolver

	// Recorder, if set, is told about every session start and end.
	Recorder Recorder

	// GatherTimeout bounds ICE gathering while answering an offer (default: 5s).
	GatherTimeout time.Duration

	// OnCount, if set, is called with the number of open sessions after every change.
	OnCount func(n int)

	// API builds peer connections. Nil uses a default pion API.
	API *webrtc.API
}

// Manager owns the live sessions. It is safe for concurrent use.
type Manager struct {
	config Config
	api    *webrtc.API

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(config Config) *Manager {
	if config.GatherTimeout <= 0 {
		config.GatherTimeout = 5 * time.Second
	}
	api := config.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	return &Manager{
		config:   config,
		api:      api,
		sessions: make(map[string]*Session),
	}
}

// Open answers a browser offer and starts a WebRTC session.
func (m *Manager) Open(ctx context.Context, offer webrtc.SessionDescription) (*Session, webrtc.SessionDescription, error) {
	if m.config.Handler == nil {
		return nil, webrtc.SessionDescription{}, errors.New("live: no frame handler configured")
	}

	var res ice.Resolution
	if m.config.ICE != nil {
		res = m.config.ICE.Servers(ctx)
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: ice.ToWebRTC(res.Servers),
	})
	if err != nil {
		return nil, webrtc.SessionDescription{}, fmt.Errorf("create peer connection: %w", err)
	}

	sess := newSession(uuid.NewString(), TransportWebRTC, res.Degraded, m.config.Handler)
	sess.pc = pc

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			logger.Log().Debug("ignoring data channel", zap.String("session", sess.id), zap.String("label", dc.Label()))
			return
		}
		// pion delivers messages of one channel sequentially, in arrival order.
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				return
			}
			m.ServeFrame(sess, msg.Data, dc.Send, dc.SendText)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Log().Debug("peer connection state", zap.String("session", sess.id), zap.String("state", state.String()))
		if peerEnded(state) {
			// Closing from inside a pion callback can deadlock.
			go m.Close(sess.id)
		}
	})

	answer, err := m.negotiate(ctx, pc, offer)
	if err != nil {
		pc.Close()
		return nil, webrtc.SessionDescription{}, err
	}

	if err := m.register(sess, pc.ConnectionState); err != nil {
		return nil, webrtc.SessionDescription{}, err
	}
	logger.Log().Info("live session opened",
		zap.String("session", sess.id),
		zap.String("transport", string(sess.transport)),
		zap.Bool("ice_degraded", res.Degraded),
	)
	return sess, answer, nil
}

// register adds sess and then reads its connection state. A state change that
// fired before the session was registered found nothing to close, so a peer
// that already ended is closed here.
func (m *Manager) register(sess *Session, state func() webrtc.PeerConnectionState) error {
	m.add(sess)
	if !peerEnded(state()) {
		return nil
	}
	if err := m.Close(sess.id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		logger.Log().Debug("closing ended peer", zap.String("session", sess.id), zap.Error(err))
	}
	return ErrPeerEnded
}

func peerEnded(state webrtc.PeerConnectionState) bool {
	return state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed
}

func (m *Manager) negotiate(ctx context.Context, pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(m.config.GatherTimeout)
	defer timer.Stop()

	select {
	case <-gathered:
	case <-timer.C:
		logger.Log().Warn("ice gathering timed out, answering with partial candidates")
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	return *pc.LocalDescription(), nil
}

// Attach registers a session whose frames arrive through another transport.
func (m *Manager) Attach(transport Transport) (*Session, error) {
	if m.config.Handler == nil {
		return nil, errors.New("live: no frame handler configured")
	}
	sess := newSession(uuid.NewString(), transport, false, m.config.Handler)
	m.add(sess)
	logger.Log().Info("live session opened", zap.String("session", sess.id), zap.String("transport", string(transport)))
	return sess, nil
}

// Get returns the open session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Close ends the session with id and closes its peer connection.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.count(n)

	if !sess.end() {
		return nil
	}

	var err error
	if sess.pc != nil {
		err = sess.pc.Close()
	}

	info := sess.Info()
	if m.config.Recorder != nil {
		if rerr := m.config.Recorder.SessionEnded(info); rerr != nil {
			logger.Log().Warn("failed to record session end", zap.String("session", id), zap.Error(rerr))
		}
	}
	logger.Log().Info("live session closed",
		zap.String("session", id),
		zap.Int64("frames", info.Frames),
		zap.Int64("failed_frames", info.FailedFrames),
	)
	return err
}

// List returns snapshots of the open sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, sess.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll ends every open session.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			logger.Log().Warn("failed to close session", zap.String("session", id), zap.Error(err))
		}
	}
}

func (m *Manager) add(sess *Session) {
	m.mu.Lock()
	m.sessions[sess.id] = sess
	n := len(m.sessions)
	m.mu.Unlock()

	m.count(n)
	if m.config.Recorder != nil {
		if err := m.config.Recorder.SessionStarted(sess.Info()); err != nil {
			logger.Log().Warn("failed to record session start", zap.String("session", sess.id), zap.Error(err))
		}
	}
}

func (m *Manager) count(n int) {
	if m.config.OnCount != nil {
		m.config.OnCount(n)
	}
}

// errorMessage is sent back on the data channel when a frame fails.
type errorMessage struct {
	Error string `json:"error"`
}

// ServeFrame handles one frame of sess and replies with the annotated frame or an error message.
func (m *Manager) ServeFrame(sess *Session, payload []byte, send func([]byte) error, sendText func(string) error) {
	out, err := sess.Handle(payload)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return
		}
		logger.Log().Warn("frame skipped", zap.String("session", sess.id), zap.Error(err))
		b, _ := json.Marshal(errorMessage{Error: err.Error()})
		if serr := sendText(string(b)); serr != nil {
			logger.Log().Debug("failed to send frame error", zap.String("session", sess.id), zap.Error(serr))
		}
		return
	}

	if err := send(out); err != nil {
		logger.Log().Debug("failed to send frame", zap.String("session", sess.id), zap.Error(err))
	}
}
