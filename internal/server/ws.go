package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/live"
	"github.com/sibisee/sibisee/internal/logger"
	"github.com/sibisee/sibisee/internal/server/api"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served from this host or a dev proxy
	},
}

// LiveSocketHandler carries a live session over a WebSocket: every binary
// message is a JPEG frame and is answered by the annotated frame, or by a
// JSON text message when the frame fails.
type LiveSocketHandler struct {
	manager *live.Manager
}

// NewLiveSocketHandler creates a new LiveSocketHandler.
func NewLiveSocketHandler(m *live.Manager) *LiveSocketHandler {
	return &LiveSocketHandler{manager: m}
}

// Serve handles GET /api/live/ws.
func (h *LiveSocketHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess, err := h.manager.Attach(live.TransportWebSocket)
	if err != nil {
		logger.Log().Error("failed to attach websocket session", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer func() {
		if err := h.manager.Close(sess.ID()); err != nil && !errors.Is(err, live.ErrSessionNotFound) {
			logger.Log().Debug("websocket session close", zap.String("session", sess.ID()), zap.Error(err))
		}
	}()

	// gorilla allows one concurrent writer.
	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, data)
	}
	send := func(b []byte) error { return write(websocket.BinaryMessage, b) }
	sendText := func(s string) error { return write(websocket.TextMessage, []byte(s)) }

	if err := sendText(`{"session_id":"` + sess.ID() + `"}`); err != nil {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-sess.Done():
				// Ended through the API; unblock the read loop.
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(api.MaxImageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log().Debug("websocket read error", zap.String("session", sess.ID()), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.BinaryMessage {
			_ = sendText(`{"error":"frames must be binary JPEG messages"}`)
			continue
		}
		h.manager.ServeFrame(sess, payload, send, sendText)
	}
}
