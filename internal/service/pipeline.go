package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/metrics"
	apperrors "pdf-vision-extractor/pkg/errors"

	"github.com/google/uuid"
)

// PageChunker splits one page into extraction-sized chunks
type PageChunker interface {
	Chunk(page domain.PageImage) ([]domain.ImageChunk, error)
}

// Pipeline drives one document through
// Idle → Downloading → Rasterizing → Chunking → Extracting → Reassembling → Done | Failed.
type Pipeline struct {
	acquirer   domain.DocumentAcquirer
	rasterizer domain.PageRasterizer
	chunker    PageChunker
	extractor  *Extractor
	logger     domain.Logger
	metrics    *metrics.Recorder
	timeout    time.Duration
	observer   domain.StateObserver
}

// NewPipeline wires the stages together. A zero timeout means no pipeline-wide deadline.
func NewPipeline(
	acquirer domain.DocumentAcquirer,
	rasterizer domain.PageRasterizer,
	chunker PageChunker,
	extractor *Extractor,
	logger domain.Logger,
	recorder *metrics.Recorder,
	timeout time.Duration,
) *Pipeline {
	return &Pipeline{
		acquirer:   acquirer,
		rasterizer: rasterizer,
		chunker:    chunker,
		extractor:  extractor,
		logger:     logger,
		metrics:    recorder,
		timeout:    timeout,
	}
}

// SetObserver registers a callback for state transitions
func (p *Pipeline) SetObserver(observer domain.StateObserver) {
	p.observer = observer
}

// run holds the per-call state of one pipeline execution
type run struct {
	id    string
	state domain.PipelineState
	start time.Time
}

// Run processes the document at ref. It returns either a complete result,
// possibly with per-chunk failures noted in the summary, or a *domain.StageError.
func (p *Pipeline) Run(ctx context.Context, ref string) (*domain.PDFProcessingResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	r := &run{id: uuid.NewString(), state: domain.StateIdle, start: time.Now()}
	p.transition(r, domain.StateIdle)

	p.transition(r, domain.StateDownloading)
	doc, err := p.acquirer.Acquire(ctx, ref)
	if err != nil {
		return nil, p.fail(ctx, r, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, p.fail(ctx, r, err)
	}
	p.transition(r, domain.StateRasterizing)
	pages, totalPages, err := p.rasterizer.Rasterize(ctx, doc)
	if err != nil {
		return nil, p.fail(ctx, r, err)
	}
	// raw bytes are no longer needed once pages exist
	doc.Data = nil

	if err := ctx.Err(); err != nil {
		return nil, p.fail(ctx, r, err)
	}
	p.transition(r, domain.StateChunking)
	var chunks []domain.ImageChunk
	var stageErrors []string
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(ctx, r, err)
		}
		pageChunks, err := p.chunker.Chunk(pages[i])
		if err != nil {
			p.logger.Error("Failed to chunk page", err, "run_id", r.id, "page", pages[i].PageIndex)
			stageErrors = append(stageErrors, fmt.Sprintf("page %d: chunking failed: %v", pages[i].PageIndex+1, err))
		}
		chunks = append(chunks, pageChunks...)
		pages[i].Image = nil
	}
	p.logger.Info("Pages chunked", "run_id", r.id, "pages", len(pages), "chunks", len(chunks))

	if err := ctx.Err(); err != nil {
		return nil, p.fail(ctx, r, err)
	}
	p.transition(r, domain.StateExtracting)
	results, err := p.extractor.Extract(ctx, chunks)
	if err != nil {
		return nil, p.fail(ctx, r, err)
	}

	p.transition(r, domain.StateReassembling)
	text, perPage := Reassemble(results, len(pages))

	result := &domain.PDFProcessingResult{
		RunID:          r.id,
		TotalPages:     totalPages,
		ProcessedPages: len(pages),
		ExtractedText:  text,
		PerPageResults: perPage,
		Summary:        summarize(results, len(pages), stageErrors, time.Since(r.start)),
	}

	p.transition(r, domain.StateDone)
	p.metrics.RunFinished(string(domain.StateDone), time.Since(r.start))
	p.logger.Info("Pipeline complete",
		"run_id", r.id,
		"pages", result.ProcessedPages,
		"total_pages", result.TotalPages,
		"chunks", result.Summary.TotalChunks,
		"failed_chunks", result.Summary.FailedChunks,
		"tokens", result.Summary.TotalTokensUsed,
		"duration_ms", result.Summary.TotalProcessingTimeMs,
	)
	return result, nil
}

func (p *Pipeline) transition(r *run, state domain.PipelineState) {
	r.state = state
	p.logger.Debug("Pipeline state", "run_id", r.id, "state", state)
	if p.observer != nil {
		p.observer(r.id, state)
	}
}

// fail records the failing stage and returns it wrapped around a typed application error
func (p *Pipeline) fail(ctx context.Context, r *run, err error) error {
	stage := r.state
	appErr := classifyStageError(ctx, stage, err)
	p.logger.Error("Pipeline failed", err, "run_id", r.id, "stage", stage)
	p.transition(r, domain.StateFailed)
	p.metrics.RunFinished(string(domain.StateFailed), time.Since(r.start))
	return &domain.StageError{Stage: stage, Err: appErr}
}

func classifyStageError(ctx context.Context, stage domain.PipelineState, err error) *apperrors.AppError {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return apperrors.NewValidationError(vErr.Message, vErr.Field)
	case errors.Is(err, domain.ErrAcquisitionTimeout):
		return apperrors.NewTimeoutError("document download timed out", err)
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return apperrors.NewCanceledError(fmt.Sprintf("run canceled during %s", stage), err)
	case errors.Is(err, domain.ErrInvalidDocument):
		return apperrors.NewInvalidDocumentError("source is not a PDF document", err)
	case errors.Is(err, domain.ErrAggregateFailure):
		return apperrors.NewAggregateFailure("no chunk could be extracted", err)
	}

	switch stage {
	case domain.StateDownloading:
		return apperrors.NewAcquisitionError("failed to acquire document", err)
	case domain.StateRasterizing:
		return apperrors.NewRasterizationError("failed to rasterize document", err)
	case domain.StateChunking:
		return apperrors.NewChunkingError("failed to chunk pages", err)
	case domain.StateExtracting:
		return apperrors.NewExtractionError("failed to extract text", err)
	default:
		return apperrors.NewInternalError("pipeline failed", err)
	}
}

func summarize(results []domain.ExtractionResult, pages int, stageErrors []string, elapsed time.Duration) domain.ProcessingSummary {
	s := domain.ProcessingSummary{
		TotalChunks:           len(results),
		TotalProcessingTimeMs: elapsed.Milliseconds(),
		Errors:                append([]string{}, stageErrors...),
	}

	succeeded := 0
	for _, r := range results {
		s.TotalTokensUsed += r.TokenUsage
		if r.Success {
			succeeded++
			continue
		}
		s.FailedChunks++
		s.Errors = append(s.Errors, r.Error)
	}

	if pages > 0 {
		s.AverageChunksPerPage = float64(len(results)) / float64(pages)
	}
	if len(results) > 0 {
		s.SuccessRatePercent = float64(succeeded) / float64(len(results)) * 100
	}
	return s
}
