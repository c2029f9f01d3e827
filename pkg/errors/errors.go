package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard error codes
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
)

// Fulfillment domain error codes
const (
	CodeUnresolvableLocation    = "UNRESOLVABLE_LOCATION"
	CodeUnknownBadge            = "UNKNOWN_BADGE"
	CodeInvalidScanGrammar      = "INVALID_SCAN_GRAMMAR"
	CodeConcurrentClaimConflict = "CONCURRENT_CLAIM_CONFLICT"
	CodeStaleReference          = "STALE_REFERENCE"
	CodeImportIdentityMismatch  = "IMPORT_IDENTITY_MISMATCH"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrConflict creates a conflict error
func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(CodeUnauthorized, message, http.StatusUnauthorized)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrServiceUnavailable creates a service unavailable error
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout)
}

// Domain errors

// ErrUnresolvableLocation is raised when an order detail has no stock location
func ErrUnresolvableLocation(item string) *AppError {
	return NewAppError(CodeUnresolvableLocation, fmt.Sprintf("no stock location for item %s", item), http.StatusUnprocessableEntity)
}

// ErrUnknownBadge is raised when badge authentication is required and fails
func ErrUnknownBadge(badge string) *AppError {
	return NewAppError(CodeUnknownBadge, "badge is not recognized or inactive", http.StatusUnauthorized).WithDetail("badge", badge)
}

// ErrInvalidScanGrammar is raised when a scan token matches no known form
func ErrInvalidScanGrammar(token string) *AppError {
	return NewAppError(CodeInvalidScanGrammar, "scan did not match any known token form", http.StatusBadRequest).WithDetail("token", token)
}

// ErrConcurrentClaimConflict is raised when another device won a claim race
func ErrConcurrentClaimConflict(instructionID string) *AppError {
	return NewAppError(CodeConcurrentClaimConflict, "work instruction was claimed by another device", http.StatusConflict).WithDetail("instructionId", instructionID)
}

// ErrStaleReference is raised when a purged record is still referenced by a session
func ErrStaleReference(kind, id string) *AppError {
	return NewAppError(CodeStaleReference, fmt.Sprintf("%s no longer exists", kind), http.StatusGone).WithDetail("id", id)
}

// ErrImportIdentityMismatch is raised when a re-import would duplicate a business identity
func ErrImportIdentityMismatch(detailKey string) *AppError {
	return NewAppError(CodeImportIdentityMismatch, "import would duplicate an existing order detail identity", http.StatusConflict).WithDetail("detailKey", detailKey)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given application error code
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}

// MapDomainError maps common domain error messages to AppErrors
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "not found"):
		return ErrNotFound("resource").Wrap(err)
	case strings.Contains(msg, "already exists"):
		return ErrConflict(msg).Wrap(err)
	case strings.Contains(msg, "invalid"):
		return ErrValidation(msg).Wrap(err)
	case strings.Contains(msg, "required"):
		return ErrValidation(msg).Wrap(err)
	case strings.Contains(msg, "timeout"):
		return ErrTimeout("operation").Wrap(err)
	default:
		return ErrInternal("").Wrap(err)
	}
}
