package domain

import (
	"image"
)

// PipelineState is the stage a pipeline run is currently in
type PipelineState string

const (
	StateIdle         PipelineState = "idle"
	StateDownloading  PipelineState = "downloading"
	StateRasterizing  PipelineState = "rasterizing"
	StateChunking     PipelineState = "chunking"
	StateExtracting   PipelineState = "extracting"
	StateReassembling PipelineState = "reassembling"
	StateDone         PipelineState = "done"
	StateFailed       PipelineState = "failed"
)

// PageBreakMarker separates page texts in the assembled document
const PageBreakMarker = "\n\n--- Page Break ---\n\n"

// PDFDocument holds validated raw PDF bytes for a single run
type PDFDocument struct {
	Data   []byte
	Source string
}

// PageImage is one rasterized page. PageIndex is zero-based.
type PageImage struct {
	Image     image.Image
	Width     int
	Height    int
	PageIndex int
}

// ImageChunk is a rectangular region of a page, PNG-encoded.
// It is owned by exactly one extraction task and never mutated.
type ImageChunk struct {
	ID         string `json:"id"`
	Data       []byte `json:"-"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	OriginX    int    `json:"origin_x"`
	OriginY    int    `json:"origin_y"`
	ChunkIndex int    `json:"chunk_index"`
	PageIndex  int    `json:"page_index"`
}

// ExtractionResult is the outcome of extracting a single chunk
type ExtractionResult struct {
	ChunkID          string `json:"chunk_id"`
	Text             string `json:"text"`
	TokenUsage       int    `json:"token_usage"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Success          bool   `json:"success"`
	Attempts         int    `json:"attempts"`
	Error            string `json:"error,omitempty"`
	ChunkIndex       int    `json:"chunk_index"`
	PageIndex        int    `json:"page_index"`
}

// PageResult is the reassembled text of one page
type PageResult struct {
	PageIndex    int    `json:"page_index"`
	Text         string `json:"text"`
	ChunkCount   int    `json:"chunk_count"`
	FailedChunks int    `json:"failed_chunks"`
}

// ProcessingSummary aggregates statistics for a finished run
type ProcessingSummary struct {
	TotalTokensUsed       int      `json:"total_tokens_used"`
	TotalProcessingTimeMs int64    `json:"total_processing_time_ms"`
	AverageChunksPerPage  float64  `json:"average_chunks_per_page"`
	SuccessRatePercent    float64  `json:"success_rate_percent"`
	TotalChunks           int      `json:"total_chunks"`
	FailedChunks          int      `json:"failed_chunks"`
	Errors                []string `json:"errors"`
}

// PDFProcessingResult is the final output of a pipeline run
type PDFProcessingResult struct {
	RunID          string            `json:"run_id"`
	TotalPages     int               `json:"total_pages"`
	ProcessedPages int               `json:"processed_pages"`
	ExtractedText  string            `json:"extracted_text"`
	PerPageResults []PageResult      `json:"per_page_results"`
	Summary        ProcessingSummary `json:"summary"`
}

// ChunkingOptions controls how page images are split
type ChunkingOptions struct {
	MaxLongSide   int
	AspectTrigger float64
	OverlapPct    float64
}

// RasterOptions controls page rasterization
type RasterOptions struct {
	DPI      int
	MaxPages int
}
