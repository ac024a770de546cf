package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/app"
	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/logger"
)

// DetectHandler serves static image detection.
type DetectHandler struct {
	app *app.App
}

// NewDetectHandler creates a new DetectHandler.
func NewDetectHandler(a *app.App) *DetectHandler {
	return &DetectHandler{app: a}
}

// detectResponse is the body of a successful POST /api/detect.
type detectResponse struct {
	Status     app.Status           `json:"status"`
	Labels     []string             `json:"labels"`
	Detections []detector.Detection `json:"detections"`
	Image      string               `json:"image"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Confidence float64              `json:"confidence"`
}

// Detect handles POST /api/detect. The image is either the multipart field
// "image" or the raw request body. "confidence" may be given as a form value
// or query parameter; it defaults to the current live threshold.
func (h *DetectHandler) Detect(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImageBytes)

	image, err := readImage(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorResponse(c, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	confidence := h.app.Confidence()
	if raw := c.Request.FormValue("confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !app.ValidConfidence(v) {
			errorResponse(c, http.StatusBadRequest, app.ErrInvalidConfidence.Error())
			return
		}
		confidence = v
	}

	out, err := h.app.Run(c.Request.Context(), app.StaticImageMode{Image: image, Confidence: confidence})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrDecodeImage):
			errorResponse(c, http.StatusUnprocessableEntity, app.ErrDecodeImage.Error())
		case errors.Is(err, app.ErrInvalidConfidence):
			errorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled):
			c.Abort()
		default:
			logger.Log().Error("static detection failed", zap.Error(err))
			errorResponse(c, http.StatusInternalServerError, "detection failed")
		}
		return
	}

	res := out.(app.StaticOutcome).Result
	c.JSON(http.StatusOK, detectResponse{
		Status:     res.Status,
		Labels:     res.Labels,
		Detections: res.Detections,
		Image:      base64.StdEncoding.EncodeToString(res.Image),
		Width:      res.Width,
		Height:     res.Height,
		Confidence: confidence,
	})
}

func readImage(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return nil, errors.New(`missing "image" file field`)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, MaxImageBytes))
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}
