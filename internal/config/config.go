// Package config loads SiBiSee configuration from a YAML file and secrets from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Model variants.
const (
	VariantPlain  = "plain"
	VariantSecure = "secure"
)

// Detector backends.
const (
	BackendONNX        = "onnx"
	BackendUltralytics = "ultralytics"
	BackendMock        = "mock"
)

// Default values.
const (
	DefaultAddr          = ":8080"
	DefaultConfidence    = 0.25
	DefaultModelPath     = "models/best.onnx"
	DefaultEncryptedPath = "models/best.onnx.enc"
	DefaultInputSize     = 640
	DefaultIoU           = 0.45
	DefaultICETTL        = 600 * time.Second
	DefaultFallbackTTL   = 30 * time.Second
	DefaultICETimeout    = 5 * time.Second
	DefaultFallbackURL   = "stun:stun.l.google.com:19302"
	DefaultTokenBaseURL  = "https://api.twilio.com"
	DefaultStorePath     = "data/sibisee.db"
	DefaultJPEGQuality   = 80
	DefaultGatherTimeout = 5 * time.Second
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	ICE       ICEConfig       `yaml:"ice"`
	Detection DetectionConfig `yaml:"detection"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	StaticDir     string        `yaml:"staticDir"`
	GatherTimeout time.Duration `yaml:"gatherTimeout"`
}

// ModelConfig selects and locates the detector weights.
type ModelConfig struct {
	Variant       string  `yaml:"variant"`
	Backend       string  `yaml:"backend"`
	Path          string  `yaml:"path"`
	EncryptedPath string  `yaml:"encryptedPath"`
	LabelsPath    string  `yaml:"labelsPath"`
	InputSize     int     `yaml:"inputSize"`
	IoU           float64 `yaml:"iou"`
	Python        string  `yaml:"python"`
	Script        string  `yaml:"script"`
}

// ICEConfig configures relay-token resolution.
type ICEConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	FallbackTTL  time.Duration `yaml:"fallbackTTL"`
	Timeout      time.Duration `yaml:"timeout"`
	FallbackURL  string        `yaml:"fallbackURL"`
	TokenBaseURL string        `yaml:"tokenBaseURL"`
}

// DetectionConfig holds detection defaults.
type DetectionConfig struct {
	Confidence  float64 `yaml:"confidence"`
	JPEGQuality int     `yaml:"jpegQuality"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
}

// Default returns a Config with every field set to its default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:          DefaultAddr,
			GatherTimeout: DefaultGatherTimeout,
		},
		Model: ModelConfig{
			Variant:       VariantPlain,
			Backend:       BackendONNX,
			Path:          DefaultModelPath,
			EncryptedPath: DefaultEncryptedPath,
			InputSize:     DefaultInputSize,
			IoU:           DefaultIoU,
		},
		ICE: ICEConfig{
			TTL:          DefaultICETTL,
			FallbackTTL:  DefaultFallbackTTL,
			Timeout:      DefaultICETimeout,
			FallbackURL:  DefaultFallbackURL,
			TokenBaseURL: DefaultTokenBaseURL,
		},
		Detection: DetectionConfig{
			Confidence:  DefaultConfidence,
			JPEGQuality: DefaultJPEGQuality,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
	}
}

// Load reads the YAML file at path over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	return cfg, cfg.Validate()
}
