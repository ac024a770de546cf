// Package frame converts between the encodings and channel orders used by the
// transports and the detector.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ErrDecode is returned when a payload is not a decodable image.
var ErrDecode = errors.New("cannot decode image")

// Order is the channel order of a 3-channel frame.
type Order int

const (
	// BGR is the OpenCV order and the order detectors expect.
	BGR Order = iota
	// RGB is the order browsers and most image libraries use.
	RGB
)

func (o Order) String() string {
	switch o {
	case BGR:
		return "bgr"
	case RGB:
		return "rgb"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// Convert returns a copy of src converted from one channel order to another.
// The caller owns the returned Mat.
func Convert(src gocv.Mat, from, to Order) gocv.Mat {
	if from == to || src.Channels() != 3 {
		return src.Clone()
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToRGB)
	return dst
}

// SwapRB swaps the first and third channel of every pixel in buf in place.
// It is its own inverse.
func SwapRB(buf []byte, channels int) {
	if channels < 3 {
		return
	}
	for i := 0; i+2 < len(buf); i += channels {
		buf[i], buf[i+2] = buf[i+2], buf[i]
	}
}

// Decode decodes a JPEG or PNG payload into a BGR frame.
func Decode(payload []byte) (gocv.Mat, error) {
	if len(payload) == 0 {
		return gocv.NewMat(), ErrDecode
	}
	mat, err := gocv.IMDecode(payload, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), ErrDecode
	}
	return mat, nil
}

// DecodeOriented decodes an uploaded photo into a BGR frame, applying its EXIF
// orientation so camera captures come out upright.
func DecodeOriented(payload []byte) (gocv.Mat, error) {
	img, err := imaging.Decode(bytes.NewReader(payload), imaging.AutoOrientation(true))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FromImage(img)
}

// FromImage copies img into a new BGR frame.
func FromImage(img image.Image) (gocv.Mat, error) {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), ErrDecode
	}

	data := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			data = append(data, row[x+2], row[x+1], row[x])
		}
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("create mat: %w", err)
	}
	// NewMatFromBytes shares data; detach it from the Go slice.
	out := mat.Clone()
	mat.Close()
	return out, nil
}

// Encode encodes a BGR frame as JPEG at the given quality (1-100).
func Encode(mat gocv.Mat, quality int) ([]byte, error) {
	if mat.Empty() {
		return nil, errors.New("encode: frame is empty")
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close.
	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
