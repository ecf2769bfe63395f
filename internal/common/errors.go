package common

import (
	"errors"
	"fmt"
)

// AppError carries a classification code alongside the message so callers
// can decide between retrying, isolating and aborting.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError wraps an underlying error with a code and message.
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError creates a new coded error.
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Error codes.
const (
	// ErrCodeTransientUpstream: metadata source unreachable or rate
	// limited. Retried with backoff; the run is deferred, not failed
	// permanently.
	ErrCodeTransientUpstream = "TRANSIENT_UPSTREAM"

	// ErrCodeConfiguration: missing credentials or malformed thresholds.
	// Fatal for the run, never retried.
	ErrCodeConfiguration = "CONFIGURATION"

	// ErrCodeChannelDelivery: one notification channel failed. Recorded,
	// other channels unaffected, the run still counts as successful.
	ErrCodeChannelDelivery = "CHANNEL_DELIVERY"

	// ErrCodePersistence: the report or schedule state could not be
	// written durably. Fatal for the run; unpersisted results must never
	// be reported as success.
	ErrCodePersistence = "PERSISTENCE"

	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL"
)

// CodeOf returns the classification code of err, or ErrCodeInternal when
// the error carries none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCodeTransientUpstream
}

// IsConfiguration reports whether err is a configuration error, which is
// never retried.
func IsConfiguration(err error) bool {
	return CodeOf(err) == ErrCodeConfiguration
}
