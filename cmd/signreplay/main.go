// Command signreplay runs the live detection pipeline over a video file or a
// local camera and prints the detected letters as they change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/app"
	"github.com/sibisee/sibisee/internal/config"
	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/frame"
	"github.com/sibisee/sibisee/internal/logger"
	"github.com/sibisee/sibisee/internal/model"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "path to a dotenv file with secrets")
	input := flag.String("input", "", "video file, URL, or camera device id")
	confidence := flag.Float64("confidence", -1, "confidence threshold (default: detection.confidence)")
	limit := flag.Int("frames", 0, "stop after this many frames (0: until the input ends)")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *envFile, *input, *confidence, *limit); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "signreplay: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, input string, confidence float64, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Options{Level: "warn", File: cfg.Log.File}); err != nil {
		return err
	}
	defer logger.Sync()

	if confidence < 0 {
		confidence = cfg.Detection.Confidence
	}
	if !app.ValidConfidence(confidence) {
		return app.ErrInvalidConfidence
	}

	labels := detector.SIBIAlphabet()
	if cfg.Model.LabelsPath != "" {
		if labels, err = detector.LoadLabels(cfg.Model.LabelsPath); err != nil {
			return err
		}
	}

	provisioner := model.New(model.Config{
		Variant:       cfg.Model.Variant,
		Backend:       cfg.Model.Backend,
		Path:          cfg.Model.Path,
		EncryptedPath: cfg.Model.EncryptedPath,
		Key:           secrets.EncryptionKey,
		Detector: detector.Config{
			InputSize: cfg.Model.InputSize,
			IoU:       cfg.Model.IoU,
			Labels:    labels,
			Python:    cfg.Model.Python,
			Script:    cfg.Model.Script,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	det, err := provisioner.Get(ctx)
	if err != nil {
		return err
	}
	defer provisioner.Invalidate()

	src, err := frame.OpenCapture(input)
	if err != nil {
		return err
	}
	defer src.Close()

	stats, err := replay(ctx, det, src, confidence, limit, os.Stdout)
	if err != nil {
		return err
	}
	stats.print(os.Stdout)
	return nil
}

// replayStats summarises one replay.
type replayStats struct {
	frames  int
	failed  int
	letters map[string]int
	took    time.Duration
}

// replay feeds src through the pipeline and writes a line whenever the set of
// detected letters changes.
func replay(ctx context.Context, det detector.Detector, src frame.Source, confidence float64, limit int, w io.Writer) (*replayStats, error) {
	stats := &replayStats{letters: make(map[string]int)}
	start := time.Now()
	previous := ""
	highlight := color.New(color.FgGreen, color.Bold)

	for limit <= 0 || stats.frames < limit {
		if err := ctx.Err(); err != nil {
			break
		}

		in, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		out, result, err := app.ProcessFrame(det, confidence, in, app.Orders{})
		in.Close()
		out.Close()
		stats.frames++
		if err != nil {
			stats.failed++
			logger.Log().Warn("frame skipped", zap.Int("frame", stats.frames), zap.Error(err))
			continue
		}

		current := result.Labels()
		for _, l := range current {
			stats.letters[l]++
		}

		joined := strings.Join(current, " ")
		if joined != previous {
			if joined == "" {
				fmt.Fprintf(w, "%6d  -\n", stats.frames)
			} else {
				fmt.Fprintf(w, "%6d  %s\n", stats.frames, highlight.Sprint(joined))
			}
			previous = joined
		}
	}

	stats.took = time.Since(start)
	return stats, nil
}

func (s *replayStats) print(w io.Writer) {
	fps := 0.0
	if s.took > 0 {
		fps = float64(s.frames) / s.took.Seconds()
	}
	fmt.Fprintf(w, "\n%d frames (%d failed) in %s, %.1f fps\n", s.frames, s.failed, s.took.Round(time.Millisecond), fps)

	letters := make([]string, 0, len(s.letters))
	for l := range s.letters {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	for _, l := range letters {
		fmt.Fprintf(w, "  %-3s %d\n", l, s.letters[l])
	}
}
