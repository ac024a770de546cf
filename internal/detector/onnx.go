package detector

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// ONNXDetector implements Detector for YOLOv8 ONNX exports using the OpenCV DNN module.
//
// gocv.Net is not safe for concurrent use; wrap the detector with Serialized
// when it is shared between goroutines.
type ONNXDetector struct {
	config Config
	net    gocv.Net
	labels []string
}

// NewONNXDetector loads the ONNX model at modelPath.
func NewONNXDetector(modelPath string, config Config) (*ONNXDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("stat model: %w", err)
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}
	if config.IoU <= 0 {
		config.IoU = DefaultConfig().IoU
	}
	labels := config.Labels
	if labels == nil {
		labels = SIBIAlphabet()
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("read onnx model %s: network is empty", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}

	return &ONNXDetector{
		config: config,
		net:    net,
		labels: labels,
	}, nil
}

// Detect runs one forward pass and decodes the YOLOv8 output.
func (d *ONNXDetector) Detect(frame *gocv.Mat, confidence float64) (*Result, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if !validConfidence(confidence) {
		return nil, ErrInvalidConfidence
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(*frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// YOLOv8 emits [1, 4+classes, candidates].
	dims := output.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected output dims %v", dims)
	}
	attrs, candidates := dims[1], dims[2]

	reshaped := output.Reshape(1, attrs)
	defer reshaped.Close()

	rows := gocv.NewMat()
	defer rows.Close()
	gocv.Transpose(reshaped, &rows)

	data, err := rows.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	found, err := decodeYOLO(data, attrs, candidates, size, frame.Cols(), frame.Rows(), confidence)
	if err != nil {
		return nil, err
	}

	result := &Result{Detections: []Detection{}}
	if len(found.boxes) == 0 {
		return result, nil
	}

	keep := gocv.NMSBoxes(found.boxes, found.scores, float32(confidence), float32(d.config.IoU))
	for _, idx := range keep {
		result.Detections = append(result.Detections, Detection{
			ClassID: found.classes[idx],
			Label:   labelFor(d.labels, found.classes[idx]),
			Score:   float64(found.scores[idx]),
			Box:     found.boxes[idx],
		})
	}

	return result, nil
}

// yoloCandidates holds decoded boxes before non-maximum suppression.
type yoloCandidates struct {
	boxes   []image.Rectangle
	scores  []float32
	classes []int
}

// decodeYOLO reads candidates rows of attrs values each, laid out as
// [cx, cy, w, h, class scores...] in size x size input coordinates.
// Rows whose best class score is below confidence are dropped. Boxes are
// scaled to a frameW x frameH frame and clipped to it.
func decodeYOLO(data []float32, attrs, candidates, size, frameW, frameH int, confidence float64) (yoloCandidates, error) {
	var out yoloCandidates
	if attrs <= 4 || size <= 0 {
		return out, fmt.Errorf("unexpected output layout: %d attributes, input size %d", attrs, size)
	}
	if len(data) < attrs*candidates {
		return out, fmt.Errorf("output has %d values, want %d", len(data), attrs*candidates)
	}

	xFactor := float32(frameW) / float32(size)
	yFactor := float32(frameH) / float32(size)
	bounds := image.Rect(0, 0, frameW, frameH)

	for i := 0; i < candidates; i++ {
		row := data[i*attrs : (i+1)*attrs]

		classID, best := -1, float32(0)
		for j, s := range row[4:] {
			if s > best {
				best, classID = s, j
			}
		}
		if classID < 0 || float64(best) < confidence {
			continue
		}

		cx, cy, w, h := row[0]*xFactor, row[1]*yFactor, row[2]*xFactor, row[3]*yFactor
		x0 := int(cx - w/2)
		y0 := int(cy - h/2)
		box := image.Rect(x0, y0, x0+int(w), y0+int(h)).Intersect(bounds)
		if box.Empty() {
			continue
		}

		out.boxes = append(out.boxes, box)
		out.scores = append(out.scores, best)
		out.classes = append(out.classes, classID)
	}
	return out, nil
}

// Labels returns the label table.
func (d *ONNXDetector) Labels() []string {
	return d.labels
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	return d.net.Close()
}
