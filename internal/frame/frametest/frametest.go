// Package frametest provides synthetic frames for tests.
package frametest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"gocv.io/x/gocv"
)

// Solid returns a rows x cols BGR frame filled with (b, g, r).
func Solid(rows, cols int, b, g, r uint8) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(b), float64(g), float64(r), 0), rows, cols, gocv.MatTypeCV8UC3)
}

// Split returns a BGR frame whose left half is pure blue and right half pure red,
// so a swapped channel order is visible at any pixel.
func Split(rows, cols int) gocv.Mat {
	mat := Solid(rows, cols, 255, 0, 0)
	right := mat.Region(image.Rect(cols/2, 0, cols, rows))
	right.SetTo(gocv.NewScalar(0, 0, 255, 0))
	right.Close()
	return mat
}

// Sequence returns n solid frames with distinct grey levels.
func Sequence(n, rows, cols int) []gocv.Mat {
	frames := make([]gocv.Mat, n)
	for i := range frames {
		v := uint8((i * 37) % 256)
		frames[i] = Solid(rows, cols, v, v, v)
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []gocv.Mat) {
	for i := range frames {
		frames[i].Close()
	}
}

// JPEG encodes mat as JPEG and fails the test on error.
func JPEG(tb testing.TB, mat gocv.Mat) []byte {
	tb.Helper()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		tb.Fatalf("encode fixture: %v", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

// PNG returns a PNG of a rows x cols image filled with c.
func PNG(tb testing.TB, rows, cols int, c color.Color) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}
