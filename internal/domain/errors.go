package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidDocument    = errors.New("invalid document: missing PDF header")
	ErrAcquisitionTimeout = errors.New("document acquisition timed out")
	ErrEmptyDocument      = errors.New("document has no pages")
	ErrAggregateFailure   = errors.New("all chunks failed extraction")
	ErrRecordNotFound     = errors.New("record not found")
	ErrCacheMiss          = errors.New("cache miss")
)

// Extraction backend error classes. Backends wrap their native errors with
// one of these so the retry policy can decide what is transient.
var (
	ErrRateLimited        = errors.New("backend rate limited")
	ErrInvalidRequest     = errors.New("backend rejected request")
	ErrBackendTimeout     = errors.New("backend call timed out")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ValidationError represents a validation error with field and message information.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// StageError names the pipeline state in which a run failed
type StageError struct {
	Stage PipelineState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed during %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a backend error is worth retrying.
// Invalid requests are not; unclassified errors are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
