package app

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/frame"
	"github.com/sibisee/sibisee/internal/logger"
)

// ErrFramePanic wraps a panic recovered while processing a single frame.
var ErrFramePanic = errors.New("frame processing panicked")

// Frame results reported to Metrics.ObserveFrame.
const (
	FrameOK    = "ok"
	FrameError = "error"
	FramePanic = "panic"
)

// Orders describes the channel order on each side of the detector.
type Orders struct {
	// Transport is the order frames arrive and leave in.
	Transport frame.Order
	// Detector is the order the detector expects.
	Detector frame.Order
}

// ProcessFrame runs one frame through the detector:
//  1. convert from the transport order to the detector order
//  2. detect with threshold
//  3. draw the detections onto a copy
//  4. convert back to the transport order
//
// It keeps no state between calls. in is not modified; the caller owns the returned Mat.
func ProcessFrame(det detector.Detector, threshold float64, in gocv.Mat, orders Orders) (gocv.Mat, *detector.Result, error) {
	if in.Empty() {
		return gocv.NewMat(), nil, detector.ErrEmptyFrame
	}

	converted := frame.Convert(in, orders.Transport, orders.Detector)
	defer converted.Close()

	result, err := det.Detect(&converted, threshold)
	if err != nil {
		return gocv.NewMat(), nil, fmt.Errorf("detect: %w", err)
	}

	annotated := result.Render(converted)
	defer annotated.Close()

	return frame.Convert(annotated, orders.Detector, orders.Transport), result, nil
}

// FrameCallback is the per-frame entry point used by live transports.
// One callback may serve many sessions concurrently.
type FrameCallback struct {
	det       detector.Detector
	threshold *Threshold
	orders    Orders
	quality   int
	metrics   Metrics
}

// OnFrame processes one decoded frame at the current threshold.
// A panic inside the detector is recovered and returned as ErrFramePanic so a
// single bad frame never ends the session.
func (c *FrameCallback) OnFrame(in gocv.Mat) (out gocv.Mat, err error) {
	start := time.Now()
	threshold := c.threshold.Load()

	defer func() {
		if r := recover(); r != nil {
			out = gocv.NewMat()
			err = fmt.Errorf("%w: %v", ErrFramePanic, r)
			logger.Log().Error("frame callback panic", zap.Any("panic", r))
			c.metrics.ObserveFrame(FramePanic, time.Since(start))
		}
	}()

	out, _, err = ProcessFrame(c.det, threshold, in, c.orders)
	if err != nil {
		c.metrics.ObserveFrame(FrameError, time.Since(start))
		return out, err
	}
	c.metrics.ObserveFrame(FrameOK, time.Since(start))
	return out, nil
}

// HandlePayload decodes an encoded frame, runs OnFrame and encodes the annotated frame as JPEG.
func (c *FrameCallback) HandlePayload(payload []byte) ([]byte, error) {
	in, err := frame.Decode(payload)
	if err != nil {
		c.metrics.ObserveFrame(FrameError, 0)
		return nil, err
	}
	defer in.Close()

	out, err := c.OnFrame(in)
	defer out.Close()
	if err != nil {
		return nil, err
	}

	return frame.Encode(out, c.quality)
}
