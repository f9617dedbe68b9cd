package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/metrics"
	apperrors "pdf-vision-extractor/pkg/errors"
)

// Runner is the part of Pipeline the service depends on
type Runner interface {
	Run(ctx context.Context, ref string) (*domain.PDFProcessingResult, error)
}

// ExtractionService runs jobs for the HTTP and CLI surfaces. It adds result
// caching and the record-store update hook around the pipeline.
type ExtractionService struct {
	pipeline    Runner
	cache       domain.ResultCache
	records     domain.RecordUpdater
	fingerprint string
	cacheTTL    time.Duration
	logger      domain.Logger
	metrics     *metrics.Recorder
}

// NewExtractionService creates the service. cache and records may be nil.
func NewExtractionService(
	pipeline Runner,
	cache domain.ResultCache,
	records domain.RecordUpdater,
	fingerprint string,
	cacheTTL time.Duration,
	logger domain.Logger,
	recorder *metrics.Recorder,
) *ExtractionService {
	return &ExtractionService{
		pipeline:    pipeline,
		cache:       cache,
		records:     records,
		fingerprint: fingerprint,
		cacheTTL:    cacheTTL,
		logger:      logger,
		metrics:     recorder,
	}
}

// Extract validates the job, serves it from cache when possible, runs the
// pipeline otherwise and finally updates the linked record.
func (s *ExtractionService) Extract(ctx context.Context, job domain.ExtractionJob) (*domain.PDFProcessingResult, error) {
	if err := job.Validate(); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return nil, apperrors.NewValidationError(vErr.Message, vErr.Field)
		}
		return nil, apperrors.NewValidationError(err.Error())
	}

	key, cacheable := s.cacheKey(job.Source)
	if cacheable {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			s.metrics.CacheLookup(true)
			s.logger.Info("Serving cached extraction", "run_id", cached.RunID, "record_id", job.RecordID)
			s.markRecord(ctx, job.RecordID, cached, nil)
			return cached, nil
		} else if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("Result cache lookup failed", "error", err)
		}
		s.metrics.CacheLookup(false)
	}

	result, err := s.pipeline.Run(ctx, job.Source)
	s.markRecord(ctx, job.RecordID, result, err)
	if err != nil {
		return nil, err
	}

	// Partial results are not cached so a later run can recover the failed chunks.
	if cacheable && result.Summary.FailedChunks == 0 {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache extraction result", "error", err, "run_id", result.RunID)
		}
	}
	return result, nil
}

// cacheKey hashes remote sources together with the config fingerprint.
// Local files can change under the same path, so they are never cached.
func (s *ExtractionService) cacheKey(source string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	if !IsRemoteSource(source) {
		return "", false
	}
	sum := sha256.Sum256([]byte(s.fingerprint + "|" + source))
	return hex.EncodeToString(sum[:]), true
}

func (s *ExtractionService) markRecord(ctx context.Context, recordID string, result *domain.PDFProcessingResult, runErr error) {
	if recordID == "" || s.records == nil {
		return
	}

	update := domain.RecordUpdate{
		Status:    domain.StatusFor(result),
		UpdatedAt: time.Now().UTC(),
	}
	if result != nil {
		update.ExtractedText = result.ExtractedText
		update.PageCount = result.ProcessedPages
	}
	if runErr != nil {
		update.Status = domain.RecordStatusFailed
		update.ErrorMessage = runErr.Error()
	}

	// The run's deadline may already be spent; the update gets its own.
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if err := s.records.MarkProcessed(updateCtx, recordID, update); err != nil {
		s.logger.Error("Failed to update record", err, "record_id", recordID, "status", update.Status)
		return
	}
	s.logger.Info("Record updated", "record_id", recordID, "status", update.Status)
}
