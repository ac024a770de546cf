package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/app"
	"github.com/sibisee/sibisee/internal/logger"
)

// Modes lists the detection modes offered to the UI. "upload" and "camera"
// are the image sources of the static mode.
var Modes = []string{"live", "upload", "camera"}

// SettingsHandler serves the UI configuration and the confidence setting.
type SettingsHandler struct {
	app *app.App
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(a *app.App) *SettingsHandler {
	return &SettingsHandler{app: a}
}

// confidenceRequest is the body of PUT /api/settings/confidence.
type confidenceRequest struct {
	Value *float64 `json:"value" binding:"required"`
}

// Config handles GET /api/config.
func (h *SettingsHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"confidence": h.app.Confidence(),
		"modes":      Modes,
		"labels":     h.app.Labels(),
	})
}

// SetConfidence handles PUT /api/settings/confidence.
func (h *SettingsHandler) SetConfidence(c *gin.Context) {
	var req confidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.app.SetConfidence(*req.Value); err != nil {
		if errors.Is(err, app.ErrInvalidConfidence) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.Log().Error("failed to persist confidence", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to save setting")
		return
	}

	c.JSON(http.StatusOK, gin.H{"confidence": h.app.Confidence()})
}
