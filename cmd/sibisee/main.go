package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/app"
	"github.com/sibisee/sibisee/internal/config"
	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/ice"
	"github.com/sibisee/sibisee/internal/logger"
	"github.com/sibisee/sibisee/internal/model"
	"github.com/sibisee/sibisee/internal/monitor"
	"github.com/sibisee/sibisee/internal/server"
	"github.com/sibisee/sibisee/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "path to a dotenv file with secrets")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		var loadErr *model.LoadError
		if errors.As(err, &loadErr) {
			halt(loadErr)
		}
		fmt.Fprintf(os.Stderr, "sibisee: %v\n", err)
		os.Exit(1)
	}
}

// halt reports a model that cannot be loaded and stops the process.
func halt(err *model.LoadError) {
	banner := color.New(color.FgWhite, color.BgRed, color.Bold)
	banner.Fprintln(os.Stderr, " MODEL UNAVAILABLE ")
	color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
	color.New(color.FgRed).Fprintln(os.Stderr, "detection is disabled until the model can be loaded")
	logger.Log().Error("model load failed", zap.String("stage", string(err.Stage)), zap.Error(err))
	logger.Sync()
	os.Exit(1)
}

func run(configPath, envFile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(envFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Options{
		Development: cfg.Log.Development,
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Log()

	log.Info("starting SiBiSee",
		zap.String("config", configPath),
		zap.String("variant", cfg.Model.Variant),
		zap.String("backend", cfg.Model.Backend),
	)

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	labels := detector.SIBIAlphabet()
	if cfg.Model.LabelsPath != "" {
		if labels, err = detector.LoadLabels(cfg.Model.LabelsPath); err != nil {
			return fmt.Errorf("load labels: %w", err)
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
	defer func() {
		if err := provisioner.Invalidate(); err != nil {
			log.Warn("failed to close detector", zap.Error(err))
		}
	}()

	metrics := monitor.New()

	iceConfig := ice.Config{
		TTL:         cfg.ICE.TTL,
		FallbackTTL: cfg.ICE.FallbackTTL,
		Timeout:     cfg.ICE.Timeout,
		FallbackURL: cfg.ICE.FallbackURL,
		Observe:     metrics.ObserveICE,
	}
	if secrets.HasRelayCredentials() {
		iceConfig.Source = ice.NewTwilioClient(cfg.ICE.TokenBaseURL, secrets.AccountSID, secrets.AuthToken, cfg.ICE.Timeout)
	} else {
		log.Warn("relay credentials not set, serving public STUN only")
	}

	application, err := app.New(app.Config{
		Detector:      det,
		ICE:           ice.NewService(iceConfig),
		Store:         st,
		Metrics:       metrics,
		Confidence:    &cfg.Detection.Confidence,
		JPEGQuality:   cfg.Detection.JPEGQuality,
		GatherTimeout: cfg.Server.GatherTimeout,
	})
	if err != nil {
		return err
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Info("serving static files", zap.String("dir", webDir))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(server.Config{
		App:       application,
		Metrics:   metrics.Handler(),
		StaticDir: webDir,
		Model:     fmt.Sprintf("%s/%s", provisioner.Variant(), cfg.Model.Backend),
	})

	go metrics.Run(ctx, 5*time.Second)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	application.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "../web" and "../../web".
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
