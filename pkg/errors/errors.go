package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the pipeline stage or category an error belongs to
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeAcquisition      ErrorType = "acquisition"
	ErrorTypeInvalidDocument  ErrorType = "invalid_document"
	ErrorTypeTimeout          ErrorType = "acquisition_timeout"
	ErrorTypeRasterization    ErrorType = "rasterization"
	ErrorTypeChunking         ErrorType = "chunking"
	ErrorTypeExtraction       ErrorType = "extraction"
	ErrorTypeAggregateFailure ErrorType = "aggregate_failure"
	ErrorTypeCanceled         ErrorType = "canceled"
	ErrorTypeInternal         ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		Details:    detail,
		StatusCode: http.StatusBadRequest,
	}
}

// NewAcquisitionError creates an error for a document that could not be fetched
func NewAcquisitionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeAcquisition,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewInvalidDocumentError creates an error for bytes that are not a PDF
func NewInvalidDocumentError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidDocument,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewTimeoutError creates an error for a fetch that exceeded its deadline
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewRasterizationError creates a terminal rasterization error
func NewRasterizationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeRasterization,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewChunkingError creates a chunking error. These are recovered locally.
func NewChunkingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeChunking,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewExtractionError creates a per-chunk extraction error
func NewExtractionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExtraction,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewAggregateFailure creates the error raised when no chunk of a document succeeded
func NewAggregateFailure(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeAggregateFailure,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewCanceledError creates an error for a run stopped by its context
func NewCanceledError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCanceled,
		Message:    message,
		StatusCode: http.StatusRequestTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsType checks if any error in the chain is an AppError of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
