package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

const scriptName = "detector_service.py"

// SubprocessDetector implements Detector using an Ultralytics YOLO worker in a Python subprocess.
// It serves weights formats the DNN module cannot read, such as .pt checkpoints.
//
// The worker is started by the constructor and holds the weights in memory, so the
// weights file may be removed once NewSubprocessDetector returns.
type SubprocessDetector struct {
	config Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	labels []string

	mu     sync.Mutex
	closed bool
}

// NewSubprocessDetector starts the worker and waits for it to load weightsPath.
func NewSubprocessDetector(weightsPath string, config Config) (*SubprocessDetector, error) {
	script := config.Script
	if script == "" {
		script = findScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}

	python := config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	d := &SubprocessDetector{config: config}
	d.cmd = exec.Command(python, script, weightsPath)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start detector service: %w", err)
	}
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)

	// The worker prints one ready line once the weights are loaded.
	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("wait for detector service: %w", err)
	}

	var ready struct {
		Ready  bool     `json:"ready"`
		Labels []string `json:"labels"`
		Error  string   `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &ready); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("parse ready line: %w", err)
	}
	if !ready.Ready {
		d.shutdown()
		return nil, fmt.Errorf("detector service: %s", ready.Error)
	}

	switch {
	case config.Labels != nil:
		d.labels = config.Labels
	case len(ready.Labels) > 0:
		d.labels = ready.Labels
	default:
		d.labels = SIBIAlphabet()
	}

	return d, nil
}

// Detect sends frame to the worker and reads back its detections.
func (d *SubprocessDetector) Detect(frame *gocv.Mat, confidence float64) (*Result, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}
	if !validConfidence(confidence) {
		return nil, ErrInvalidConfidence
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector service is closed")
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Request: length (4 bytes big-endian), confidence (float32 bits), JPEG bytes.
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	binary.BigEndian.PutUint32(header[4:], math.Float32bits(float32(confidence)))

	if _, err := d.stdin.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Detections []jsonDetection `json:"detections"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("detector service: %s", response.Error)
	}

	result := &Result{Detections: make([]Detection, 0, len(response.Detections))}
	for _, jd := range response.Detections {
		if jd.Score < confidence {
			continue
		}
		result.Detections = append(result.Detections, jd.toDetection(d.labels))
	}

	return result, nil
}

// Labels returns the label table.
func (d *SubprocessDetector) Labels() []string {
	return d.labels
}

// Close shuts down the Python process.
func (d *SubprocessDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *SubprocessDetector) shutdown() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.stdin != nil {
		d.stdin.Close()
	}
	return d.cmd.Wait()
}

func findScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment next to the project.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// jsonDetection is one detection as emitted by the Python service.
type jsonDetection struct {
	ClassID int        `json:"class_id"`
	Score   float64    `json:"score"`
	Box     [4]float64 `json:"box"`
}

func (jd jsonDetection) toDetection(labels []string) Detection {
	return Detection{
		ClassID: jd.ClassID,
		Label:   labelFor(labels, jd.ClassID),
		Score:   jd.Score,
		Box: image.Rect(
			int(math.Round(jd.Box[0])),
			int(math.Round(jd.Box[1])),
			int(math.Round(jd.Box[2])),
			int(math.Round(jd.Box[3])),
		),
	}
}
