package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sibisee/sibisee/internal/ice"
)

// ICEHandler serves the ICE server list for browser peer connections.
type ICEHandler struct {
	service *ice.Service
}

// NewICEHandler creates a new ICEHandler.
func NewICEHandler(service *ice.Service) *ICEHandler {
	return &ICEHandler{service: service}
}

// Servers handles GET /api/ice-servers. It always answers 200; a degraded
// resolution carries the STUN fallback and a warning.
func (h *ICEHandler) Servers(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, h.service.Servers(c.Request.Context()))
}
