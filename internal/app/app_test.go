package app

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/frame/frametest"
	"github.com/sibisee/sibisee/internal/store"
)

func newTestApp(t *testing.T, det detector.Detector, s *store.Store) *App {
	t.Helper()
	a, err := New(Config{Detector: det, Store: s})
	require.NoError(t, err)
	t.Cleanup(a.Shutdown)
	return a
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	t.Run("requires a detector", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("rejects an invalid initial confidence", func(t *testing.T) {
		invalid := 3.0
		_, err := New(Config{Detector: detector.NewMockDetector(), Confidence: &invalid})
		assert.ErrorIs(t, err, ErrInvalidConfidence)
	})

	t.Run("keeps an explicit zero", func(t *testing.T) {
		zero := 0.0
		a, err := New(Config{Detector: detector.NewMockDetector(), Confidence: &zero})
		require.NoError(t, err)
		defer a.Shutdown()
		assert.Equal(t, 0.0, a.Confidence())
	})

	t.Run("defaults to 0.25", func(t *testing.T) {
		a := newTestApp(t, detector.NewMockDetector(), nil)
		assert.Equal(t, 0.25, a.Confidence())
		assert.Len(t, a.Labels(), 26)
	})
}

func TestApp_Confidence(t *testing.T) {
	t.Run("persists and restores", func(t *testing.T) {
		s := newTestStore(t)

		a := newTestApp(t, detector.NewMockDetector(), s)
		require.NoError(t, a.SetConfidence(0.6))
		assert.Equal(t, 0.6, a.Confidence())

		restored := newTestApp(t, detector.NewMockDetector(), s)
		assert.Equal(t, 0.6, restored.Confidence())
	})

	t.Run("rejects out of range values", func(t *testing.T) {
		a := newTestApp(t, detector.NewMockDetector(), nil)
		assert.ErrorIs(t, a.SetConfidence(1.5), ErrInvalidConfidence)
		assert.Equal(t, 0.25, a.Confidence())
	})

	t.Run("ignores a corrupt stored value", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Settings().Set(store.SettingConfidence, "7"))

		a := newTestApp(t, detector.NewMockDetector(), s)
		assert.Equal(t, 0.25, a.Confidence())
	})
}

func TestApp_DetectImage(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetDetections([]detector.Detection{
		detector.LetterDetection('A', 0.91, image.Rect(2, 2, 30, 30)),
		detector.LetterDetection('B', 0.40, image.Rect(34, 2, 60, 30)),
		detector.LetterDetection('A', 0.35, image.Rect(2, 34, 30, 60)),
	})
	a := newTestApp(t, det, nil)

	photo := frametest.PNG(t, 64, 64, color.RGBA{R: 200, G: 180, B: 160, A: 255})

	t.Run("detected", func(t *testing.T) {
		res, err := a.DetectImage(context.Background(), photo, 0.3)
		require.NoError(t, err)

		assert.Equal(t, StatusDetected, res.Status)
		assert.Equal(t, []string{"A", "B"}, res.Labels)
		assert.Len(t, res.Detections, 3)
		assert.Equal(t, 64, res.Width)
		assert.Equal(t, 64, res.Height)
		assert.NotEmpty(t, res.Image)
	})

	t.Run("empty is not an error", func(t *testing.T) {
		res, err := a.DetectImage(context.Background(), photo, 0.95)
		require.NoError(t, err)

		assert.Equal(t, StatusEmpty, res.Status)
		assert.Empty(t, res.Labels)
		assert.NotNil(t, res.Labels)
		assert.Empty(t, res.Detections)
		assert.NotEmpty(t, res.Image)
	})

	t.Run("per-call confidence leaves the live threshold alone", func(t *testing.T) {
		_, err := a.DetectImage(context.Background(), photo, 0.8)
		require.NoError(t, err)
		assert.Equal(t, 0.25, a.Confidence())
	})

	t.Run("undecodable upload", func(t *testing.T) {
		_, err := a.DetectImage(context.Background(), []byte("%PDF-1.7"), 0.3)
		assert.ErrorIs(t, err, ErrDecodeImage)
	})

	t.Run("invalid confidence", func(t *testing.T) {
		_, err := a.DetectImage(context.Background(), photo, -1)
		assert.ErrorIs(t, err, ErrInvalidConfidence)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := a.DetectImage(ctx, photo, 0.3)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestApp_Run(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetDetections([]detector.Detection{
		detector.LetterDetection('C', 0.7, image.Rect(2, 2, 20, 20)),
	})
	a := newTestApp(t, det, nil)

	t.Run("static mode", func(t *testing.T) {
		photo := frametest.PNG(t, 32, 32, color.RGBA{G: 255, A: 255})
		out, err := a.Run(context.Background(), StaticImageMode{Image: photo, Confidence: 0.5})
		require.NoError(t, err)

		static, ok := out.(StaticOutcome)
		require.True(t, ok, "expected StaticOutcome, got %T", out)
		assert.Equal(t, []string{"C"}, static.Result.Labels)
	})

	t.Run("live mode with a bad offer", func(t *testing.T) {
		_, err := a.Run(context.Background(), LiveMode{Offer: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not sdp"}})
		assert.Error(t, err)
		assert.Equal(t, 0, a.Live().Count())
	})
}

func TestParseModeKind(t *testing.T) {
	cases := map[string]ModeKind{
		"live":     ModeLive,
		"Realtime": ModeLive,
		"webrtc":   ModeLive,
		"upload":   ModeStatic,
		"camera":   ModeStatic,
		" image ":  ModeStatic,
	}
	for in, want := range cases {
		got, err := ParseModeKind(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}

	_, err := ParseModeKind("telepathy")
	assert.Error(t, err)

	assert.Equal(t, ModeLive, LiveMode{}.Kind())
	assert.Equal(t, ModeStatic, StaticImageMode{}.Kind())
}
