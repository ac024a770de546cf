package detector

import (
	"image"
	"testing"
)

// yoloRows flattens candidate rows of [cx, cy, w, h, scores...].
func yoloRows(rows ...[]float32) []float32 {
	var data []float32
	for _, r := range rows {
		data = append(data, r...)
	}
	return data
}

func TestDecodeYOLO(t *testing.T) {
	const attrs = 7 // 4 box values and 3 classes

	tests := []struct {
		name       string
		rows       [][]float32
		frameW     int
		frameH     int
		confidence float64
		wantBoxes  []image.Rectangle
		wantClass  []int
	}{
		{
			name: "rows below the threshold are dropped",
			rows: [][]float32{
				{320, 320, 64, 64, 0.1, 0.2, 0.3},
				{100, 100, 20, 20, 0.9, 0.0, 0.0},
			},
			frameW: 640, frameH: 640, confidence: 0.5,
			wantBoxes: []image.Rectangle{image.Rect(90, 90, 110, 110)},
			wantClass: []int{0},
		},
		{
			name: "best class wins",
			rows: [][]float32{
				{320, 320, 64, 64, 0.6, 0.95, 0.7},
			},
			frameW: 640, frameH: 640, confidence: 0.5,
			wantBoxes: []image.Rectangle{image.Rect(288, 288, 352, 352)},
			wantClass: []int{1},
		},
		{
			name: "boxes are scaled to the frame",
			rows: [][]float32{
				{320, 320, 64, 64, 0, 0, 0.8},
			},
			frameW: 1280, frameH: 960, confidence: 0.5,
			wantBoxes: []image.Rectangle{image.Rect(576, 432, 704, 528)},
			wantClass: []int{2},
		},
		{
			name: "boxes are clipped to the frame",
			rows: [][]float32{
				{630, 10, 40, 40, 0.8, 0, 0},
			},
			frameW: 640, frameH: 640, confidence: 0.5,
			wantBoxes: []image.Rectangle{image.Rect(610, 0, 640, 30)},
			wantClass: []int{0},
		},
		{
			name: "boxes outside the frame are dropped",
			rows: [][]float32{
				{700, 700, 20, 20, 0.8, 0, 0},
			},
			frameW: 640, frameH: 640, confidence: 0.5,
		},
		{
			name: "zero confidence keeps any scored row",
			rows: [][]float32{
				{320, 320, 64, 64, 0.01, 0, 0},
				{320, 320, 64, 64, 0, 0, 0},
			},
			frameW: 640, frameH: 640, confidence: 0,
			wantBoxes: []image.Rectangle{image.Rect(288, 288, 352, 352)},
			wantClass: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeYOLO(yoloRows(tt.rows...), attrs, len(tt.rows), 640, tt.frameW, tt.frameH, tt.confidence)
			if err != nil {
				t.Fatalf("decodeYOLO() error = %v", err)
			}
			if len(got.boxes) != len(tt.wantBoxes) {
				t.Fatalf("expected %d boxes, got %v", len(tt.wantBoxes), got.boxes)
			}
			if len(got.scores) != len(got.boxes) || len(got.classes) != len(got.boxes) {
				t.Fatalf("boxes, scores and classes differ in length: %d, %d, %d",
					len(got.boxes), len(got.scores), len(got.classes))
			}
			for i := range tt.wantBoxes {
				if got.boxes[i] != tt.wantBoxes[i] {
					t.Errorf("box %d = %v, want %v", i, got.boxes[i], tt.wantBoxes[i])
				}
				if got.classes[i] != tt.wantClass[i] {
					t.Errorf("class %d = %d, want %d", i, got.classes[i], tt.wantClass[i])
				}
			}
		})
	}

	t.Run("short output", func(t *testing.T) {
		if _, err := decodeYOLO(make([]float32, attrs), attrs, 2, 640, 640, 640, 0.5); err == nil {
			t.Error("expected an error for truncated output")
		}
	})

	t.Run("no class columns", func(t *testing.T) {
		if _, err := decodeYOLO(make([]float32, 8), 4, 2, 640, 640, 640, 0.5); err == nil {
			t.Error("expected an error for an output without class scores")
		}
	})

	t.Run("score is the best class score", func(t *testing.T) {
		got, err := decodeYOLO([]float32{320, 320, 64, 64, 0.3, 0.75, 0.6}, attrs, 1, 640, 640, 640, 0.5)
		if err != nil {
			t.Fatalf("decodeYOLO() error = %v", err)
		}
		if len(got.scores) != 1 || got.scores[0] != 0.75 {
			t.Errorf("scores = %v, want [0.75]", got.scores)
		}
	})
}
