// Package model provisions the process-wide detector, decrypting the weights
// first when the secure variant is configured.
package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/detector"
	"github.com/sibisee/sibisee/internal/logger"
)

// Variants.
const (
	VariantPlain  = "plain"
	VariantSecure = "secure"
)

// LoadFunc builds a detector from a weights file. It must not keep the file
// open after returning, because decrypted artifacts are removed right after.
type LoadFunc func(backend, path string, config detector.Config) (detector.Detector, error)

// Config holds provisioner configuration.
type Config struct {
	Variant       string
	Backend       string
	Path          string
	EncryptedPath string
	Detector      detector.Config

	// Key is the Fernet key for the secure variant. It is never logged.
	Key string

	// Load defaults to detector.Open.
	Load LoadFunc
}

// Provisioner hands out a single detector instance for the process lifetime.
type Provisioner struct {
	config Config
	load   LoadFunc

	mu    sync.RWMutex
	det   detector.Detector
	loads int
}

// New creates a provisioner. Nothing is loaded until the first Get.
func New(config Config) *Provisioner {
	load := config.Load
	if load == nil {
		load = detector.Open
	}
	if config.Variant == "" {
		config.Variant = VariantPlain
	}
	return &Provisioner{
		config: config,
		load:   load,
	}
}

// Get returns the shared detector, loading it on first use.
// Concurrent first callers trigger exactly one load. A failed Get returns a
// *LoadError and no detector; the next call retries.
func (p *Provisioner) Get(ctx context.Context) (detector.Detector, error) {
	p.mu.RLock()
	det := p.det
	p.mu.RUnlock()
	if det != nil {
		return det, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.det != nil {
		return p.det, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var err error
	switch p.config.Variant {
	case VariantSecure:
		det, err = p.loadSecure()
	case VariantPlain:
		det, err = p.loadPlain()
	default:
		err = fmt.Errorf("unknown model variant %q", p.config.Variant)
	}
	if err != nil {
		return nil, err
	}

	p.det = det
	p.loads++
	logger.Log().Info("model loaded",
		zap.String("variant", p.config.Variant),
		zap.String("backend", p.config.Backend),
		zap.Int("labels", len(det.Labels())),
		zap.Duration("took", time.Since(start)),
	)
	return det, nil
}

// Loaded reports whether a detector is currently cached.
func (p *Provisioner) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.det != nil
}

// Loads returns how many times weights were loaded.
func (p *Provisioner) Loads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loads
}

// Variant returns the configured variant.
func (p *Provisioner) Variant() string {
	return p.config.Variant
}

// Invalidate closes the cached detector so the next Get loads it again.
func (p *Provisioner) Invalidate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.det == nil {
		return nil
	}
	err := p.det.Close()
	p.det = nil
	return err
}

func (p *Provisioner) loadPlain() (detector.Detector, error) {
	path := p.config.Path
	if err := checkFile(path); err != nil {
		return nil, err
	}

	det, err := p.load(p.config.Backend, path, p.config.Detector)
	if err != nil {
		return nil, loadError(StageLoad, path, ErrBackend, err)
	}
	return det, nil
}

func (p *Provisioner) loadSecure() (detector.Detector, error) {
	path := p.config.EncryptedPath
	if err := checkFile(path); err != nil {
		return nil, err
	}

	key, err := parseKey(p.config.Key)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, loadError(StageLocate, path, ErrWeightsNotFound, err)
	}

	plain, err := open(blob, key)
	if err != nil {
		return nil, &LoadError{Stage: StageDecrypt, Path: path, Err: err}
	}

	artifact, cleanup, err := writeArtifact(artifactName(path), plain)
	clear(plain)
	if err != nil {
		return nil, loadError(StageDecrypt, path, ErrDecrypt, err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Log().Warn("failed to remove decrypted weights", zap.Error(err))
		}
	}()

	det, err := p.load(p.config.Backend, artifact, p.config.Detector)
	if err != nil {
		return nil, loadError(StageLoad, path, ErrBackend, err)
	}
	return det, nil
}

func checkFile(path string) error {
	if path == "" {
		return &LoadError{Stage: StageLocate, Err: ErrWeightsNotFound}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadError{Stage: StageLocate, Path: path, Err: ErrWeightsNotFound}
		}
		return loadError(StageLocate, path, ErrWeightsNotFound, err)
	}
	if info.IsDir() {
		return loadError(StageLocate, path, ErrWeightsNotFound, errors.New("is a directory"))
	}
	return nil
}

// artifactName keeps the weights extension so the backend recognises the format.
func artifactName(encryptedPath string) string {
	name := filepath.Base(encryptedPath)
	name = strings.TrimSuffix(name, ".enc")
	if filepath.Ext(name) == "" {
		name += ".onnx"
	}
	return name
}

// writeArtifact writes data into a fresh private directory. cleanup removes both.
func writeArtifact(name string, data []byte) (string, func() error, error) {
	dir, err := os.MkdirTemp("", "sibisee-model-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(dir) }

	if err := os.Chmod(dir, 0o700); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("chmod temp dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write artifact: %w", err)
	}
	return path, cleanup, nil
}
