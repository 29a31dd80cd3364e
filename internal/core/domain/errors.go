package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig        = errors.New("invalid model config")
	ErrMissingCredential    = errors.New("missing credential")
	ErrUnsupportedProvider  = errors.New("unsupported provider")
	ErrNotFound             = errors.New("model not found")
	ErrNoAvailableModel     = errors.New("no available model")
	ErrNoActiveModel        = errors.New("no active model")
	ErrNoValidModels        = errors.New("no valid models for debate")
	ErrEmptyQuery           = errors.New("search query cannot be empty")
	ErrStreamingUnsupported = errors.New("model does not support streaming")
	ErrBackend              = errors.New("model backend error")
	ErrTraceNotFound        = errors.New("trace not found")
)

// BackendError is a transport or provider failure from a model backend.
type BackendError struct {
	Provider   string
	ModelID    string
	StatusCode int    // 0 when the request never got a response
	Code       string // provider error code, if any
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s backend %s: status %d: %s", e.Provider, e.ModelID, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s backend %s: %s", e.Provider, e.ModelID, msg)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
