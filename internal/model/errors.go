package model

import (
	"errors"
	"fmt"
)

// Load failure causes. A *LoadError wraps exactly one of them.
var (
	ErrWeightsNotFound = errors.New("weights not found")
	ErrMissingKey      = errors.New("encryption key not configured")
	ErrInvalidKey      = errors.New("encryption key is malformed")
	ErrDecrypt         = errors.New("weights could not be decrypted")
	ErrBackend         = errors.New("detector backend failed to load weights")
)

// Stage names the provisioning step that failed.
type Stage string

const (
	StageLocate  Stage = "locate"
	StageKey     Stage = "key"
	StageDecrypt Stage = "decrypt"
	StageLoad    Stage = "load"
)

// LoadError is returned by Provisioner.Get when the detector cannot be provisioned.
// It is fatal: the service must not serve detection without a model.
type LoadError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("model %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadError(stage Stage, path string, cause, err error) *LoadError {
	if err == nil {
		return &LoadError{Stage: stage, Path: path, Err: cause}
	}
	return &LoadError{Stage: stage, Path: path, Err: fmt.Errorf("%w: %v", cause, err)}
}
