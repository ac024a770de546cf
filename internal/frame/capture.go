package frame

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// Default capture settings for camera devices.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// CaptureSource reads frames from a camera device or a video file.
type CaptureSource struct {
	name    string
	capture *gocv.VideoCapture
	device  bool

	mu     sync.Mutex
	closed bool
}

// OpenCapture opens input. A decimal number is a camera device id; anything
// else is a video file path or URL.
func OpenCapture(input string) (*CaptureSource, error) {
	if id, err := strconv.Atoi(input); err == nil {
		capture, err := gocv.OpenVideoCapture(id)
		if err != nil {
			return nil, fmt.Errorf("open camera %d: %w", id, err)
		}
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		return &CaptureSource{name: input, capture: capture, device: true}, nil
	}

	capture, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", input, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: not readable", input)
	}
	return &CaptureSource{name: input, capture: capture}, nil
}

// Next reads the next frame. A video file returns io.EOF after its last frame.
// The caller is responsible for closing the returned Mat.
func (c *CaptureSource) Next() (gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return gocv.NewMat(), ErrSourceClosed
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if !c.device {
			return gocv.NewMat(), io.EOF
		}
		return gocv.NewMat(), fmt.Errorf("read frame from camera %s", c.name)
	}
	return mat, nil
}

// FPS returns the frame rate reported by the source, or 0 if unknown.
func (c *CaptureSource) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	return c.capture.Get(gocv.VideoCaptureFPS)
}

// Close releases the capture device.
func (c *CaptureSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.capture.Close()
}
