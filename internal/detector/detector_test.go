package detector

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

func TestResult_Labels(t *testing.T) {
	t.Run("nil result has no labels", func(t *testing.T) {
		var r *Result
		labels := r.Labels()
		if labels == nil || len(labels) != 0 {
			t.Errorf("expected empty non-nil labels, got %v", labels)
		}
		if !r.Empty() {
			t.Error("expected nil result to be empty")
		}
	})

	t.Run("dedupes in first-seen order", func(t *testing.T) {
		r := &Result{Detections: []Detection{
			LetterDetection('B', 0.9, image.Rect(0, 0, 10, 10)),
			LetterDetection('A', 0.8, image.Rect(20, 20, 30, 30)),
			LetterDetection('B', 0.7, image.Rect(40, 40, 50, 50)),
		}}

		labels := r.Labels()
		if len(labels) != 2 || labels[0] != "B" || labels[1] != "A" {
			t.Errorf("expected [B A], got %v", labels)
		}
		if r.Count() != 3 {
			t.Errorf("expected count 3, got %d", r.Count())
		}
	})
}

func TestResult_Render(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()

	t.Run("empty result returns an identical copy", func(t *testing.T) {
		out := (&Result{}).Render(frame)
		defer out.Close()

		if out.Rows() != frame.Rows() || out.Cols() != frame.Cols() {
			t.Fatalf("expected %dx%d, got %dx%d", frame.Cols(), frame.Rows(), out.Cols(), out.Rows())
		}
		flat := out.Reshape(1, 0)
		defer flat.Close()
		if gocv.CountNonZero(flat) != 0 {
			t.Error("expected no drawing on empty result")
		}
	})

	t.Run("draws on a copy only", func(t *testing.T) {
		r := &Result{Detections: []Detection{
			LetterDetection('C', 0.91, image.Rect(10, 30, 80, 100)),
		}}

		out := r.Render(frame)
		defer out.Close()

		flat := out.Reshape(1, 0)
		defer flat.Close()
		if gocv.CountNonZero(flat) == 0 {
			t.Error("expected the overlay to be drawn")
		}

		orig := frame.Reshape(1, 0)
		defer orig.Close()
		if gocv.CountNonZero(orig) != 0 {
			t.Error("expected the input frame to be left untouched")
		}
	})
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads one label per line", func(t *testing.T) {
		path := filepath.Join(dir, "labels.txt")
		if err := os.WriteFile(path, []byte("A\r\nB\n\n C \n"), 0o644); err != nil {
			t.Fatal(err)
		}

		labels, err := LoadLabels(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(labels) != 3 || labels[2] != "C" {
			t.Errorf("expected [A B C], got %v", labels)
		}
	})

	t.Run("empty file is an error", func(t *testing.T) {
		path := filepath.Join(dir, "empty.txt")
		if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadLabels(path); err == nil {
			t.Error("expected error for empty label file")
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := LoadLabels(filepath.Join(dir, "missing.txt")); err == nil {
			t.Error("expected error for missing label file")
		}
	})
}

func TestLabelFor(t *testing.T) {
	labels := SIBIAlphabet()
	if len(labels) != 26 || labels[0] != "A" || labels[25] != "Z" {
		t.Fatalf("unexpected alphabet %v", labels)
	}
	if got := labelFor(labels, 99); got != "class_99" {
		t.Errorf("expected placeholder label, got %q", got)
	}
}

func TestMockDetector(t *testing.T) {
	candidates := []Detection{
		LetterDetection('A', 0.95, image.Rect(0, 0, 10, 10)),
		LetterDetection('B', 0.60, image.Rect(10, 10, 20, 20)),
		LetterDetection('C', 0.30, image.Rect(20, 20, 30, 30)),
	}

	t.Run("returns empty result by default", func(t *testing.T) {
		mock := NewMockDetector()

		result, err := mock.Detect(nil, 0.25)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Empty() {
			t.Errorf("expected empty result, got %v", result.Detections)
		}
	})

	t.Run("raising the threshold never adds detections", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetDetections(candidates)

		prev := len(candidates) + 1
		for _, c := range []float64{0, 0.25, 0.5, 0.75, 1} {
			result, err := mock.Detect(nil, c)
			if err != nil {
				t.Fatalf("confidence %v: unexpected error: %v", c, err)
			}
			if result.Count() > prev {
				t.Errorf("confidence %v: count %d exceeds %d", c, result.Count(), prev)
			}
			prev = result.Count()
		}
	})

	t.Run("rejects out of range confidence", func(t *testing.T) {
		mock := NewMockDetector()
		for _, c := range []float64{-0.1, 1.5} {
			if _, err := mock.Detect(nil, c); !errors.Is(err, ErrInvalidConfidence) {
				t.Errorf("confidence %v: expected ErrInvalidConfidence, got %v", c, err)
			}
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		result, err := mock.Detect(nil, 0.5)
		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if result != nil {
			t.Errorf("expected nil result when error is set, got %v", result)
		}
	})

	t.Run("Close marks closed", func(t *testing.T) {
		mock := NewMockDetector()
		if err := mock.Close(); err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
		if !mock.Closed() {
			t.Error("expected mock to be closed")
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*ONNXDetector)(nil)
		var _ Detector = (*SubprocessDetector)(nil)
	})
}

// reentrancyProbe fails the test if two Detect calls overlap.
type reentrancyProbe struct {
	mu       sync.Mutex
	inFlight int
	overlaps int
}

func (p *reentrancyProbe) Detect(frame *gocv.Mat, confidence float64) (*Result, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > 1 {
		p.overlaps++
	}
	p.mu.Unlock()

	for i := 0; i < 1000; i++ {
		_ = i * i
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return &Result{}, nil
}

func (p *reentrancyProbe) Labels() []string { return nil }
func (p *reentrancyProbe) Close() error     { return nil }

func TestSerialized(t *testing.T) {
	probe := &reentrancyProbe{}
	d := Serialized(probe)

	if Serialized(d) != d {
		t.Error("expected wrapping twice to return the same detector")
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := d.Detect(nil, 0.5); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if probe.overlaps != 0 {
		t.Errorf("expected no overlapping calls, got %d", probe.overlaps)
	}
}

func TestOpen(t *testing.T) {
	t.Run("mock backend", func(t *testing.T) {
		d, err := Open(BackendMock, "", DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer d.Close()
		if len(d.Labels()) != 26 {
			t.Errorf("expected SIBI labels, got %v", d.Labels())
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := Open("tensorrt", "", DefaultConfig()); err == nil {
			t.Error("expected error for unknown backend")
		}
	})

	t.Run("missing onnx weights", func(t *testing.T) {
		if _, err := Open(BackendONNX, filepath.Join(t.TempDir(), "best.onnx"), DefaultConfig()); err == nil {
			t.Error("expected error for missing weights")
		}
	})
}
