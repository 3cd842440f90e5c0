package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any persistence attempt.
	ErrValidation = errors.New("validation failed")
	// ErrTurnInProgress is returned when a session is already streaming a reply.
	ErrTurnInProgress = errors.New("a tutor reply is still streaming")
	// ErrInitialization is returned when a tutor session could not be prepared.
	ErrInitialization = errors.New("tutor could not initialize")
	// ErrSessionNotFound is returned for unknown tutor sessions.
	ErrSessionNotFound = errors.New("tutor session not found")
	// ErrInvalidPassphrase is returned by the administrator gate.
	ErrInvalidPassphrase = errors.New("invalid passphrase")
	// ErrAdminDisabled is returned when no administrator passphrase is configured.
	ErrAdminDisabled = errors.New("administrator access is not configured")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets callers match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
