// Package app wires the detector, the live session manager and the ICE service
// into the SiBiSee detection application.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/ice"
	"github.com/sibisee/sibisee/internal/live"
	"github.com/sibisee/sibisee/internal/logger"
	"github.com/sibisee/sibisee/internal/store"
)

// DefaultConfidence is the initial threshold when none is configured or stored.
const DefaultConfidence = 0.25

// Metrics receives pipeline observations. *monitor.Metrics implements it.
type Metrics interface {
	ObserveFrame(result string, took time.Duration)
	ObserveStatic(status string)
	SetSessions(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveFrame(string, time.Duration) {}
func (nopMetrics) ObserveStatic(string)               {}
func (nopMetrics) SetSessions(int)                    {}

// Config holds configuration options for the application.
type Config struct {
	// Detector is the shared, provisioned detector. Required.
	Detector detector.Detector

	// ICE resolves ICE servers for live sessions. Nil answers offers with host candidates only.
	ICE *ice.Service

	// Store persists session records and the confidence setting. Optional.
	Store *store.Store

	// Metrics receives observations. Optional.
	Metrics Metrics

	// Confidence is the initial threshold. Nil means 0.25. A stored value takes precedence.
	Confidence *float64

	// JPEGQuality is used for annotated frames (default: 80).
	JPEGQuality int

	// Orders describes live frame channel orders (default: BGR on both sides).
	Orders Orders

	// GatherTimeout bounds ICE gathering when answering an offer.
	GatherTimeout time.Duration
}

// App is the main application.
type App struct {
	config    Config
	threshold *Threshold
	metrics   Metrics
	callback  *FrameCallback
	live      *live.Manager
	started   time.Time
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	confidence := DefaultConfidence
	if config.Confidence != nil {
		confidence = *config.Confidence
	}
	if !ValidConfidence(confidence) {
		return nil, ErrInvalidConfidence
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 80
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	a := &App{
		config:    config,
		threshold: NewThreshold(confidence),
		metrics:   metrics,
		started:   time.Now(),
	}
	a.restoreThreshold()

	a.callback = &FrameCallback{
		det:       config.Detector,
		threshold: a.threshold,
		orders:    config.Orders,
		quality:   config.JPEGQuality,
		metrics:   metrics,
	}

	liveConfig := live.Config{
		Handler:       a.callback,
		GatherTimeout: config.GatherTimeout,
		OnCount:       metrics.SetSessions,
	}
	if config.ICE != nil {
		liveConfig.ICE = config.ICE
	}
	if config.Store != nil {
		liveConfig.Recorder = live.NewStoreRecorder(config.Store)
	}
	a.live = live.NewManager(liveConfig)

	return a, nil
}

// restoreThreshold loads the persisted confidence, if any.
func (a *App) restoreThreshold() {
	if a.config.Store == nil {
		return
	}
	v, err := a.config.Store.Settings().GetFloat(store.SettingConfidence)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Log().Warn("ignoring stored confidence", zap.Error(err))
		}
		return
	}
	if err := a.threshold.Store(v); err != nil {
		logger.Log().Warn("ignoring stored confidence", zap.Float64("value", v), zap.Error(err))
		return
	}
	logger.Log().Info("restored confidence threshold", zap.Float64("value", v))
}

// Confidence returns the current live threshold.
func (a *App) Confidence() float64 {
	return a.threshold.Load()
}

// SetConfidence updates the live threshold and persists it. Frames already in
// flight finish with the value they started with.
func (a *App) SetConfidence(v float64) error {
	if err := a.threshold.Store(v); err != nil {
		return err
	}
	if a.config.Store != nil {
		if err := a.config.Store.Settings().SetFloat(store.SettingConfidence, v); err != nil {
			return err
		}
	}
	return nil
}

// Callback returns the live frame callback.
func (a *App) Callback() *FrameCallback {
	return a.callback
}

// Live returns the live session manager.
func (a *App) Live() *live.Manager {
	return a.live
}

// ICE returns the ICE service, or nil.
func (a *App) ICE() *ice.Service {
	return a.config.ICE
}

// Store returns the store, or nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// Detector returns the shared detector.
func (a *App) Detector() detector.Detector {
	return a.config.Detector
}

// Labels returns the detector's label table.
func (a *App) Labels() []string {
	return a.config.Detector.Labels()
}

// Uptime returns how long the app has been running.
func (a *App) Uptime() time.Duration {
	return time.Since(a.started)
}

// OpenLive answers a browser offer with a new live session.
func (a *App) OpenLive(ctx context.Context, offer webrtc.SessionDescription) (*live.Session, webrtc.SessionDescription, error) {
	return a.live.Open(ctx, offer)
}

// Shutdown ends every live session. The detector is owned by its provisioner and stays open.
func (a *App) Shutdown() {
	a.live.CloseAll()
	logger.Log().Info("live sessions closed")
}
