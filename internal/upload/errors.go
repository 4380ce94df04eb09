package upload

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the orchestrator is a *StageError
// that matches exactly one of these with errors.Is.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidInput           = errors.New("invalid input")
	ErrSessionConsumed        = errors.New("upload session already used")
	ErrAssetProvisioning      = errors.New("asset provisioning failed")
	ErrUploadTransport        = errors.New("upload transport failed")
	ErrRateLimitExceeded      = errors.New("rate limit exceeded")
	ErrPersistence            = errors.New("failed to persist video")
)

type Stage string

const (
	StageAuthenticate      Stage = "authenticate"
	StageValidate          Stage = "validate"
	StageCreateAsset       Stage = "create_asset"
	StageVideoTransfer     Stage = "video_transfer"
	StageThumbnailSlot     Stage = "thumbnail_slot"
	StageThumbnailTransfer Stage = "thumbnail_transfer"
	StageRateLimit         Stage = "rate_limit"
	StageMetadata          Stage = "metadata"
	StagePersist           Stage = "persist"
)

// StageError records where the pipeline stopped and why.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// remoteCommitted reports whether a remote asset exists when the pipeline fails at stage.
func (s Stage) remoteCommitted() bool {
	switch s {
	case StageAuthenticate, StageValidate, StageCreateAsset:
		return false
	}
	return true
}
