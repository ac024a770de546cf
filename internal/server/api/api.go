// Package api provides the JSON HTTP handlers of the SiBiSee server.
package api

import (
	"github.com/gin-gonic/gin"
)

// MaxImageBytes caps uploaded images and raw request bodies.
const MaxImageBytes = 16 << 20

// errorResponse writes {"error": msg} with status and aborts the chain.
func errorResponse(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
