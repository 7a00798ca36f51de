package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrGenerationFailed = errors.New("generation failed")
	ErrProfileMissing   = errors.New("profile missing")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "valid authentication required",
	}
}

// QuotaExceeded is returned when a free account has used its allowance.
// It is not retriable until the account's tier changes.
func QuotaExceeded(used, limit int) *AppError {
	return &AppError{
		Err:     ErrQuotaExceeded,
		Message: fmt.Sprintf("insight limit reached (%d of %d used), upgrade to premium for unlimited insights", used, limit),
	}
}

// GenerationFailed keeps the upstream cause in the chain for logging but
// only exposes a generic message.
func GenerationFailed(cause error) *AppError {
	err := ErrGenerationFailed
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
	}
	return &AppError{
		Err:     err,
		Message: "failed to generate insight, please try again",
	}
}

// ProfileMissing means account provisioning did not happen. It is an internal
// fault, so the message is never shown to callers.
func ProfileMissing(userID string) *AppError {
	return &AppError{
		Err:     ErrProfileMissing,
		Message: fmt.Sprintf("account profile missing for user %s", userID),
	}
}
