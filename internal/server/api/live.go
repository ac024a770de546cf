package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/app"
	"github.com/sibisee/sibisee/internal/live"
	"github.com/sibisee/sibisee/internal/logger"
)

// LiveHandler negotiates and ends WebRTC live sessions.
type LiveHandler struct {
	app *app.App
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(a *app.App) *LiveHandler {
	return &LiveHandler{app: a}
}

// offerRequest is the body of POST /api/live/offer.
type offerRequest struct {
	SDP  string `json:"sdp" binding:"required"`
	Type string `json:"type"`
}

// answerResponse carries the server answer for a new session.
type answerResponse struct {
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
	Type      string `json:"type"`
}

// Offer handles POST /api/live/offer.
func (h *LiveHandler) Offer(c *gin.Context) {
	var req offerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type != "" && req.Type != webrtc.SDPTypeOffer.String() {
		errorResponse(c, http.StatusBadRequest, "expected an SDP offer")
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP}
	out, err := h.app.Run(c.Request.Context(), app.LiveMode{Offer: offer})
	if err != nil {
		logger.Log().Warn("live negotiation failed", zap.Error(err))
		errorResponse(c, http.StatusBadRequest, "could not negotiate session: "+err.Error())
		return
	}

	res := out.(app.LiveOutcome)
	c.JSON(http.StatusOK, answerResponse{
		SessionID: res.SessionID,
		SDP:       res.Answer.SDP,
		Type:      res.Answer.Type.String(),
	})
}

// List handles GET /api/live.
func (h *LiveHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.app.Live().List())
}

// Close handles DELETE /api/live/:id.
func (h *LiveHandler) Close(c *gin.Context) {
	err := h.app.Live().Close(c.Param("id"))
	if errors.Is(err, live.ErrSessionNotFound) {
		errorResponse(c, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		logger.Log().Warn("error closing live session", zap.String("session", c.Param("id")), zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}
