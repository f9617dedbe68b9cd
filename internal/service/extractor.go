package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/metrics"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultInstruction asks the backend for a faithful, layout-preserving transcription
const DefaultInstruction = `Transcribe all text visible in this image exactly as written.
Preserve the reading order, line breaks, paragraph breaks, lists and table layout.
Render tables as plain text rows with cells separated by " | ".
Do not summarize, translate, correct or add commentary. Do not wrap the output in code fences.
If the image contains no text, return an empty response.`

// ExtractorOptions configures an Extractor
type ExtractorOptions struct {
	MaxParallelCalls int
	CallTimeout      time.Duration
	Retry            RetryPolicy
	// RateLimit caps call starts per second across the run; zero disables pacing
	RateLimit   float64
	HighQuality bool
	Instruction string
}

// Extractor sends chunks to a text backend under a per-run concurrency bound
type Extractor struct {
	backend domain.TextBackend
	opts    ExtractorOptions
	logger  domain.Logger
	metrics *metrics.Recorder
}

func NewExtractor(backend domain.TextBackend, opts ExtractorOptions, logger domain.Logger, recorder *metrics.Recorder) *Extractor {
	if opts.MaxParallelCalls <= 0 {
		opts.MaxParallelCalls = 1
	}
	if opts.Instruction == "" {
		opts.Instruction = DefaultInstruction
	}
	return &Extractor{
		backend: backend,
		opts:    opts,
		logger:  logger,
		metrics: recorder,
	}
}

// SentinelText is substituted for a chunk whose extraction permanently failed
func SentinelText(pageIndex, chunkIndex int) string {
	return fmt.Sprintf("[Extraction failed for page %d, chunk %d]", pageIndex+1, chunkIndex+1)
}

// Extract processes every chunk and returns one result per chunk, in input order.
// Failed chunks carry sentinel text. It fails with domain.ErrAggregateFailure only
// when no chunk succeeded, and with the context error when ctx ends first.
func (e *Extractor) Extract(ctx context.Context, chunks []domain.ImageChunk) ([]domain.ExtractionResult, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to extract", domain.ErrAggregateFailure)
	}

	// Fresh primitives per run; nothing is shared between runs.
	sem := semaphore.NewWeighted(int64(e.opts.MaxParallelCalls))
	var limiter *rate.Limiter
	if e.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.opts.RateLimit), max(1, int(e.opts.RateLimit)))
	}

	results := make([]domain.ExtractionResult, len(chunks))
	var g errgroup.Group

	dispatched := 0
	for i := range chunks {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		dispatched++
		idx := i
		g.Go(func() error {
			defer sem.Release(1)
			results[idx] = e.extractChunk(ctx, chunks[idx], limiter)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		e.logger.Warn("Extraction canceled", "dispatched", dispatched, "skipped", len(chunks)-dispatched)
		return nil, err
	}

	succeeded := 0
	var firstErr string
	for _, r := range results {
		if r.Success {
			succeeded++
		} else if firstErr == "" {
			firstErr = r.Error
		}
	}
	if succeeded == 0 {
		return results, fmt.Errorf("%w: %d of %d chunks failed, first error: %s", domain.ErrAggregateFailure, len(results), len(results), firstErr)
	}

	e.logger.Info("Extraction complete", "chunks", len(results), "succeeded", succeeded, "failed", len(results)-succeeded)
	return results, nil
}

func (e *Extractor) extractChunk(ctx context.Context, chunk domain.ImageChunk, limiter *rate.Limiter) domain.ExtractionResult {
	start := time.Now()
	result := domain.ExtractionResult{
		ChunkID:    chunk.ID,
		ChunkIndex: chunk.ChunkIndex,
		PageIndex:  chunk.PageIndex,
	}

	var resp *domain.ExtractionResponse
	attempts, err := e.opts.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		r, err := e.call(ctx, chunk)
		if err != nil {
			e.logger.Warn("Chunk extraction attempt failed",
				"chunk_id", chunk.ID, "attempt", attempt, "max_attempts", e.opts.Retry.MaxAttempts, "error", err)
			return err
		}
		resp = r
		return nil
	})

	result.Attempts = attempts
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Text = SentinelText(chunk.PageIndex, chunk.ChunkIndex)
		result.Error = fmt.Sprintf("page %d chunk %d: %v", chunk.PageIndex+1, chunk.ChunkIndex+1, err)
		e.logger.Error("Chunk extraction failed", err, "chunk_id", chunk.ID, "attempts", attempts)
		e.metrics.ChunkDone(false)
		return result
	}

	result.Success = true
	result.Text = resp.Text
	result.TokenUsage = resp.TokenUsage
	e.metrics.ChunkDone(true)
	return result
}

func (e *Extractor) call(ctx context.Context, chunk domain.ImageChunk) (*domain.ExtractionResponse, error) {
	if e.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()
	}

	e.metrics.CallStarted()
	defer e.metrics.CallFinished()

	start := time.Now()
	resp, err := e.backend.ExtractText(ctx, domain.ExtractionRequest{
		Image:       chunk.Data,
		MIMEType:    "image/png",
		Instruction: e.opts.Instruction,
		HighQuality: e.opts.HighQuality,
	})
	if err != nil {
		e.metrics.BackendCall(e.backend.Name(), errorClass(err), time.Since(start), 0)
		return nil, err
	}
	e.metrics.BackendCall(e.backend.Name(), "ok", time.Since(start), resp.TokenUsage)
	return resp, nil
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
