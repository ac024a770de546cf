package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/logger"
	"github.com/sibisee/sibisee/internal/store"
)

// SessionsHandler lists recorded live sessions.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a new SessionsHandler. store may be nil.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

// List handles GET /api/sessions?limit=N.
func (h *SessionsHandler) List(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, []*store.Session{})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		logger.Log().Error("failed to list sessions", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}
