package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the configuration for values the application cannot run with.
func (c Config) Validate() error {
	switch c.Model.Variant {
	case VariantPlain:
		if c.Model.Path == "" {
			return fmt.Errorf("%w: model.path is required for the plain variant", ErrInvalid)
		}
	case VariantSecure:
		if c.Model.EncryptedPath == "" {
			return fmt.Errorf("%w: model.encryptedPath is required for the secure variant", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown model.variant %q", ErrInvalid, c.Model.Variant)
	}

	switch c.Model.Backend {
	case BackendONNX, BackendUltralytics, BackendMock:
	default:
		return fmt.Errorf("%w: unknown model.backend %q", ErrInvalid, c.Model.Backend)
	}

	if c.Model.InputSize <= 0 || c.Model.InputSize%32 != 0 {
		return fmt.Errorf("%w: model.inputSize must be a positive multiple of 32, got %d", ErrInvalid, c.Model.InputSize)
	}
	if c.Model.IoU <= 0 || c.Model.IoU > 1 {
		return fmt.Errorf("%w: model.iou must be in (0, 1], got %v", ErrInvalid, c.Model.IoU)
	}
	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		return fmt.Errorf("%w: detection.confidence must be in [0, 1], got %v", ErrInvalid, c.Detection.Confidence)
	}
	if c.Detection.JPEGQuality < 1 || c.Detection.JPEGQuality > 100 {
		return fmt.Errorf("%w: detection.jpegQuality must be in [1, 100], got %d", ErrInvalid, c.Detection.JPEGQuality)
	}
	if c.ICE.TTL <= 0 {
		return fmt.Errorf("%w: ice.ttl must be positive", ErrInvalid)
	}
	if c.ICE.Timeout <= 0 {
		return fmt.Errorf("%w: ice.timeout must be positive", ErrInvalid)
	}
	if c.ICE.FallbackURL == "" {
		return fmt.Errorf("%w: ice.fallbackURL is required", ErrInvalid)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}

	return nil
}
