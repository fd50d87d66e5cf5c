package error

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Token errors (1xxx)
	ErrCodeInvalidIdentity ErrorCode = "AUTH_1009"
	ErrCodeTokenSigning    ErrorCode = "AUTH_1010"

	// Validation errors (2xxx)
	ErrCodeInvalidEmail   ErrorCode = "VALID_2001"
	ErrCodeInvalidRequest ErrorCode = "VALID_2005"

	// Notification errors (8xxx)
	ErrCodeNotificationFailed       ErrorCode = "NOTIFY_8001"
	ErrCodeNotificationSerialize    ErrorCode = "NOTIFY_8002"
	ErrCodePublisherClosed          ErrorCode = "NOTIFY_8003"
	ErrCodeNotificationBackpressure ErrorCode = "NOTIFY_8004"
	ErrCodeIdempotencyConflict      ErrorCode = "NOTIFY_8005"
	ErrCodeDeliveryInProgress       ErrorCode = "NOTIFY_8006"

	// Server errors (6xxx)
	ErrCodeConfigurationError   ErrorCode = "SERVER_6003"
	ErrCodeExternalServiceError ErrorCode = "SERVER_6004"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so sentinel-style comparisons work with errors.Is.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// Token errors
func ErrInvalidIdentity(details string) *AppError {
	return NewAppError(ErrCodeInvalidIdentity, "Invalid identity", details, nil)
}

func ErrTokenSigning(cause error) *AppError {
	return NewAppError(ErrCodeTokenSigning, "Failed to sign token", "", cause)
}

// Validation errors
func ErrInvalidEmail(email string) *AppError {
	return NewAppError(ErrCodeInvalidEmail, "Invalid email format", fmt.Sprintf("Email: %s", email), nil)
}

func ErrMissingField(field string) *AppError {
	return NewAppError(ErrCodeInvalidRequest, "Missing required field", fmt.Sprintf("Field: %s", field), nil)
}

// Notification errors
func ErrNotificationFailed(reason string, cause error) *AppError {
	return NewAppError(ErrCodeNotificationFailed, "Notification delivery failed", reason, cause)
}

func ErrNotificationSerialize(cause error) *AppError {
	return NewAppError(ErrCodeNotificationSerialize, "Notification payload could not be serialized", "", cause)
}

func ErrPublisherClosed() *AppError {
	return NewAppError(ErrCodePublisherClosed, "Publisher is closed", "", nil)
}

func ErrNotificationBackpressure(cause error) *AppError {
	return NewAppError(ErrCodeNotificationBackpressure, "Gave up waiting for in-flight capacity", "", cause)
}

// ErrIdempotencyConflict is returned when a key that was already used for
// this sender and recipient comes back with different content.
func ErrIdempotencyConflict(key string) *AppError {
	return NewAppError(ErrCodeIdempotencyConflict, "Idempotency key reused with a different notification", fmt.Sprintf("Key: %s", key), nil)
}

func ErrDeliveryInProgress(key string) *AppError {
	return NewAppError(ErrCodeDeliveryInProgress, "A notification with this idempotency key is still being delivered", fmt.Sprintf("Key: %s", key), nil)
}

// Server errors
func ErrConfigurationError(config string, cause error) *AppError {
	return NewAppError(ErrCodeConfigurationError, "Configuration error", fmt.Sprintf("Config: %s", config), cause)
}

func ErrExternalService(service string, cause error) *AppError {
	return NewAppError(ErrCodeExternalServiceError, "External service error", fmt.Sprintf("Service: %s", service), cause)
}

// GetHTTPStatusCode maps an error to the status the HTTP layer answers with.
func GetHTTPStatusCode(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	code := string(appErr.Code)
	switch {
	case strings.HasPrefix(code, "AUTH_"):
		if appErr.Code == ErrCodeTokenSigning {
			return http.StatusInternalServerError
		}
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "VALID_"):
		return http.StatusBadRequest
	case appErr.Code == ErrCodeNotificationSerialize:
		return http.StatusBadRequest
	case appErr.Code == ErrCodeIdempotencyConflict, appErr.Code == ErrCodeDeliveryInProgress:
		return http.StatusConflict
	case appErr.Code == ErrCodePublisherClosed, appErr.Code == ErrCodeNotificationBackpressure:
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "NOTIFY_"), appErr.Code == ErrCodeExternalServiceError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
