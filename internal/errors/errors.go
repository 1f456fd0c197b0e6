package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message}
}

func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{StatusCode: statusCode, ErrorCode: errorCode, Message: message, Details: details}
}

// Predefined errors, one per job-service error code from spec §4.1/§7.
var (
	ErrInvalidRequest     = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrInvalidInput       = New(http.StatusBadRequest, "INVALID_INPUT", "Request input is invalid")
	ErrUnauthorizedPath   = New(http.StatusForbidden, "UNAUTHORIZED_PATH", "folder is outside the allowed storage paths")
	ErrPathNotFound       = New(http.StatusBadRequest, "PATH_NOT_FOUND", "folder does not exist")
	ErrJobNotCancellable  = New(http.StatusBadRequest, "JOB_NOT_CANCELLABLE", "job is not in a cancellable state")
	ErrJobNotRetriable    = New(http.StatusBadRequest, "JOB_NOT_RETRIABLE", "job is not in a retriable state")
	ErrUnauthorized       = New(http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	ErrForbidden          = New(http.StatusForbidden, "FORBIDDEN", "access denied")
	ErrJobNotFound        = New(http.StatusNotFound, "JOB_NOT_FOUND", "job not found")
	ErrRateLimitExceeded  = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "rate limit exceeded")
	ErrInternalServer     = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable")
)

func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_INPUT", "request validation failed", ValidationError{
		Field: field, Message: message,
	})
}

func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), resource)
}

// ErrorResponse is the top-level JSON body written for every error.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err}
}

func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationErrors(errs []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_INPUT", "request validation failed", ValidationErrors{Errors: errs})
}

type PanicRecovery struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func ErrPanic(rec interface{}) *APIError {
	return NewWithDetails(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", PanicRecovery{
		Message: fmt.Sprintf("%v", rec),
	})
}

// WriteError writes err as the stable {detail|code, message} envelope spec §6.1 requires.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	json.NewEncoder(w).Encode(NewErrorResponse(err))
}

func NewValidationError(message string) *APIError {
	return New(http.StatusBadRequest, "INVALID_INPUT", message)
}

func NewInternalError(message string) *APIError {
	return New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}
