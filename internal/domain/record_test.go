package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestExtractionJob_Validate checks that a job needs a non-blank source.
func TestExtractionJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     ExtractionJob
		wantErr bool
	}{
		{
			name:    "Valid URL source",
			job:     ExtractionJob{Source: "https://example.com/a.pdf", RecordID: "rec1"},
			wantErr: false,
		},
		{
			// Record ID is optional
			name:    "Local path without record",
			job:     ExtractionJob{Source: "/tmp/a.pdf"},
			wantErr: false,
		},
		{
			name:    "Empty source",
			job:     ExtractionJob{},
			wantErr: true,
		},
		{
			name:    "Whitespace source",
			job:     ExtractionJob{Source: "   "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var vErr *ValidationError
				if !errors.As(err, &vErr) || vErr.Field != "source" {
					t.Fatalf("expected source validation error, got %v", err)
				}
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	if got := StatusFor(nil); got != RecordStatusFailed {
		t.Fatalf("expected failed for nil result, got %s", got)
	}

	ok := &PDFProcessingResult{Summary: ProcessingSummary{TotalChunks: 3}}
	if got := StatusFor(ok); got != RecordStatusProcessed {
		t.Fatalf("expected processed, got %s", got)
	}

	partial := &PDFProcessingResult{Summary: ProcessingSummary{TotalChunks: 3, FailedChunks: 1}}
	if got := StatusFor(partial); got != RecordStatusPartial {
		t.Fatalf("expected partial, got %s", got)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", fmt.Errorf("429: %w", ErrRateLimited), true},
		{"timeout", fmt.Errorf("deadline: %w", ErrBackendTimeout), true},
		{"unavailable", ErrBackendUnavailable, true},
		{"unclassified", errors.New("connection reset"), true},
		{"invalid request", fmt.Errorf("400: %w", ErrInvalidRequest), false},
		{"canceled", fmt.Errorf("run stopped: %w", context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStageError_Unwrap(t *testing.T) {
	err := &StageError{Stage: StateDownloading, Err: ErrInvalidDocument}
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected StageError to unwrap to ErrInvalidDocument")
	}
	if err.Error() != "pipeline failed during downloading: invalid document: missing PDF header" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
