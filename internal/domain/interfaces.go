package domain

import (
	"context"
	"time"
)

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
}

// DocumentAcquirer fetches and validates raw PDF bytes from a source reference
type DocumentAcquirer interface {
	Acquire(ctx context.Context, ref string) (*PDFDocument, error)
}

// RasterStrategy is one way of turning PDF bytes into page images.
// It returns the rendered pages (at most opts.MaxPages) and the document's total page count.
type RasterStrategy interface {
	Name() string
	Rasterize(ctx context.Context, data []byte, opts RasterOptions) ([]PageImage, int, error)
}

// PageRasterizer converts a document into ordered, zero-indexed page images
type PageRasterizer interface {
	Rasterize(ctx context.Context, doc *PDFDocument) ([]PageImage, int, error)
}

// ExtractionRequest is a single call to a text-extraction backend
type ExtractionRequest struct {
	Image       []byte
	MIMEType    string
	Instruction string
	HighQuality bool
}

// ExtractionResponse is what a backend returns for a chunk
type ExtractionResponse struct {
	Text       string
	TokenUsage int
}

// TextBackend extracts text from an image. Errors should wrap one of
// ErrRateLimited, ErrInvalidRequest, ErrBackendTimeout or ErrBackendUnavailable.
type TextBackend interface {
	Name() string
	ExtractText(ctx context.Context, req ExtractionRequest) (*ExtractionResponse, error)
}

// RecordUpdater marks an external record as processed. It is invoked by
// callers of the pipeline, never by the pipeline itself.
type RecordUpdater interface {
	MarkProcessed(ctx context.Context, recordID string, update RecordUpdate) error
}

// ResultCache stores finished results keyed by source and configuration
type ResultCache interface {
	Get(ctx context.Context, key string) (*PDFProcessingResult, error)
	Set(ctx context.Context, key string, result *PDFProcessingResult, ttl time.Duration) error
}

// StateObserver is notified on every pipeline state transition
type StateObserver func(runID string, state PipelineState)

// ExtractionService runs a job end-to-end for the HTTP and CLI surfaces
type ExtractionService interface {
	Extract(ctx context.Context, job ExtractionJob) (*PDFProcessingResult, error)
}
