package domain

import (
	"strings"
	"time"
)

// RecordStatus is the processing state written back to an external record
type RecordStatus string

const (
	RecordStatusProcessed RecordStatus = "processed"
	RecordStatusPartial   RecordStatus = "partial"
	RecordStatusFailed    RecordStatus = "failed"
)

// RecordUpdate is the payload of the record-store update hook
type RecordUpdate struct {
	ExtractedText string       `json:"extracted_text"`
	Status        RecordStatus `json:"processing_status"`
	ErrorMessage  string       `json:"processing_error,omitempty"`
	PageCount     int          `json:"page_count"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ExtractionJob is a request to extract text from one source
type ExtractionJob struct {
	Source   string `json:"source"`
	RecordID string `json:"record_id,omitempty"`
}

// Validate checks the job has a usable source
func (j ExtractionJob) Validate() error {
	if strings.TrimSpace(j.Source) == "" {
		return &ValidationError{Field: "source", Message: "source cannot be empty"}
	}
	return nil
}

// StatusFor derives the record status from a finished result
func StatusFor(result *PDFProcessingResult) RecordStatus {
	if result == nil {
		return RecordStatusFailed
	}
	if result.Summary.FailedChunks > 0 {
		return RecordStatusPartial
	}
	return RecordStatusProcessed
}
