package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Detection is a single detected sign.
type Detection struct {
	ClassID int             `json:"class_id"`
	Label   string          `json:"label"`
	Score   float64         `json:"score"`
	Box     image.Rectangle `json:"box"`
}

// Result is the outcome of one Detect call.
type Result struct {
	Detections []Detection `json:"detections"`
}

// Empty reports whether no sign was detected.
func (r *Result) Empty() bool {
	return r == nil || len(r.Detections) == 0
}

// Count returns the number of detections.
func (r *Result) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Detections)
}

// Labels returns the detected labels without duplicates, in first-seen order.
func (r *Result) Labels() []string {
	if r.Empty() {
		return []string{}
	}

	seen := make(map[string]bool, len(r.Detections))
	labels := make([]string, 0, len(r.Detections))
	for _, d := range r.Detections {
		if seen[d.Label] {
			continue
		}
		seen[d.Label] = true
		labels = append(labels, d.Label)
	}
	return labels
}

// palette holds the overlay colours, picked by class id.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 0},
	{R: 255, G: 157, B: 151, A: 0},
	{R: 255, G: 112, B: 31, A: 0},
	{R: 255, G: 178, B: 29, A: 0},
	{R: 207, G: 210, B: 49, A: 0},
	{R: 72, G: 249, B: 10, A: 0},
	{R: 146, G: 204, B: 23, A: 0},
	{R: 61, G: 219, B: 134, A: 0},
	{R: 26, G: 147, B: 52, A: 0},
	{R: 0, G: 212, B: 187, A: 0},
	{R: 44, G: 153, B: 168, A: 0},
	{R: 0, G: 194, B: 255, A: 0},
	{R: 52, G: 69, B: 147, A: 0},
	{R: 100, G: 115, B: 255, A: 0},
	{R: 0, G: 24, B: 236, A: 0},
	{R: 132, G: 56, B: 255, A: 0},
	{R: 82, G: 0, B: 133, A: 0},
	{R: 203, G: 56, B: 255, A: 0},
	{R: 255, G: 149, B: 200, A: 0},
	{R: 255, G: 55, B: 199, A: 0},
}

func colorFor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Render draws the bounding boxes and "label score" captions onto a copy of frame.
// frame itself is left untouched. The caller owns the returned Mat.
func (r *Result) Render(frame gocv.Mat) gocv.Mat {
	out := frame.Clone()
	if r.Empty() {
		return out
	}

	const (
		fontFace  = gocv.FontHersheySimplex
		fontScale = 0.6
		thickness = 2
	)

	for _, d := range r.Detections {
		c := colorFor(d.ClassID)
		gocv.Rectangle(&out, d.Box, c, thickness)

		caption := fmt.Sprintf("%s %.2f", d.Label, d.Score)
		size := gocv.GetTextSize(caption, fontFace, fontScale, 1)

		// Caption sits above the box, or inside it when the box touches the top edge.
		top := d.Box.Min.Y - size.Y - 6
		if top < 0 {
			top = d.Box.Min.Y
		}
		bg := image.Rect(d.Box.Min.X, top, d.Box.Min.X+size.X+6, top+size.Y+6)
		gocv.Rectangle(&out, bg, c, -1)
		gocv.PutText(&out, caption, image.Pt(bg.Min.X+3, bg.Max.Y-3), fontFace, fontScale, color.RGBA{R: 255, G: 255, B: 255, A: 0}, 1)
	}

	return out
}
