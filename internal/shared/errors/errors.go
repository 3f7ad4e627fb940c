package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")
	ErrValidation   = errors.New("validation error")

	// Crisis engine taxonomy
	ErrConfig         = errors.New("crisis config error")
	ErrActionDelivery = errors.New("action delivery error")
	ErrPersistence    = errors.New("persistence error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a forbidden error
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		HTTPStatus: http.StatusForbidden,
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Validation creates a validation error with field details.
// Malformed follow-up and event input is rejected with this before any store mutation.
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Err:        appErr.Err,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// ConfigError reports a malformed or unreachable crisis configuration.
// It is recovered locally by falling back to the last valid config.
type ConfigError struct {
	Source string // "remote", "file" or "defaults"
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("crisis config (%s): %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

// ActionDeliveryError reports that a call, text or URL could not be opened.
// FallbackNumber is shown to the user so they can dial manually.
type ActionDeliveryError struct {
	Action         string
	Target         string
	FallbackNumber string
	Err            error
}

func (e *ActionDeliveryError) Error() string {
	return fmt.Sprintf("unable to %s %s: %v", e.Action, e.Target, e.Err)
}

func (e *ActionDeliveryError) Unwrap() []error {
	return []error{ErrActionDelivery, e.Err}
}

// UserMessage is the dismissible description surfaced to the user.
func (e *ActionDeliveryError) UserMessage() string {
	if e.FallbackNumber == "" {
		return "We couldn't open this on your device. Please try again."
	}
	return fmt.Sprintf("We couldn't open this on your device. Please dial %s directly.", e.FallbackNumber)
}

// PersistenceError reports a failed write to the event or follow-up store.
// Fallback is true when the degraded write path stored the entry instead.
type PersistenceError struct {
	Key      string
	Fallback bool
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Fallback {
		return fmt.Sprintf("write %s failed, stored via fallback: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("write %s failed: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
