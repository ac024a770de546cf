package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/frame"
	"github.com/sibisee/sibisee/internal/logger"
)

var (
	// ErrDecodeImage is returned when an uploaded image cannot be decoded.
	ErrDecodeImage = errors.New("uploaded file is not a readable image")

	// ErrInvalidConfidence is returned when a confidence outside [0, 1] is requested.
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
)

// Status tells a static result with detections apart from one without.
type Status string

const (
	StatusDetected Status = "detected"
	StatusEmpty    Status = "empty"
)

// StaticResult is the outcome of DetectImage.
type StaticResult struct {
	Status     Status               `json:"status"`
	Labels     []string             `json:"labels"`
	Detections []detector.Detection `json:"detections"`

	// Image is the annotated picture as JPEG.
	Image  []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DetectImage runs the detector once on an uploaded photo or camera capture.
// Zero detections is reported as StatusEmpty, not as an error.
func (a *App) DetectImage(ctx context.Context, image []byte, confidence float64) (*StaticResult, error) {
	if !ValidConfidence(confidence) {
		return nil, ErrInvalidConfidence
	}

	mat, err := frame.DecodeOriented(image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeImage, err)
	}
	defer mat.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := a.config.Detector.Detect(&mat, confidence)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	annotated := result.Render(mat)
	defer annotated.Close()

	encoded, err := frame.Encode(annotated, a.config.JPEGQuality)
	if err != nil {
		return nil, err
	}

	status := StatusDetected
	if result.Empty() {
		status = StatusEmpty
	}
	a.metrics.ObserveStatic(string(status))

	logger.Log().Debug("static detection",
		zap.String("status", string(status)),
		zap.Int("detections", result.Count()),
		zap.Float64("confidence", confidence),
	)

	return &StaticResult{
		Status:     status,
		Labels:     result.Labels(),
		Detections: result.Detections,
		Image:      encoded,
		Width:      mat.Cols(),
		Height:     mat.Rows(),
	}, nil
}
