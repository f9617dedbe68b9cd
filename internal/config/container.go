package config

import (
	"context"
	"fmt"
	"net/http"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/infra/openrouter"
	"pdf-vision-extractor/internal/infra/supabase"
	"pdf-vision-extractor/internal/infra/vertex"
	"pdf-vision-extractor/internal/metrics"
	"pdf-vision-extractor/internal/repository"
	"pdf-vision-extractor/internal/service"
	"pdf-vision-extractor/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config            *AppConfig
	Logger            domain.Logger
	Metrics           *metrics.Recorder
	SupabaseClient    *supabase.SupabaseClient
	Backend           domain.TextBackend
	Pipeline          *service.Pipeline
	ExtractionService *service.ExtractionService

	closers []func() error
}

// NewContainer loads configuration from the environment and wires the application
func NewContainer(ctx context.Context) (*Container, error) {
	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return NewContainerWithConfig(ctx, cfg, logger.NewLogger(cfg.LogLevel, cfg.LogFormat))
}

// NewContainerWithConfig wires the application from an already validated config
func NewContainerWithConfig(ctx context.Context, cfg *AppConfig, appLogger domain.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  appLogger,
		Metrics: metrics.NewRecorder(),
	}

	c.SupabaseClient = supabase.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseKey, appLogger)

	var storage domain.ObjectStorage
	var records domain.RecordUpdater
	if c.SupabaseClient.Configured() {
		storage = service.NewStorageService(c.SupabaseClient, appLogger)
		records = repository.NewSupabaseRecordRepository(c.SupabaseClient, cfg.RecordsTable, appLogger)
	} else {
		appLogger.Warn("Supabase not configured; storage:// sources and record updates are disabled")
	}

	backend, err := c.newBackend(ctx)
	if err != nil {
		return nil, err
	}
	c.Backend = backend

	acquirer := service.NewAcquirer(cfg.AcquireTimeout, cfg.MaxFileSize, storage, appLogger)
	acquirer.SetAllowLocal(cfg.AllowLocalSources)
	rasterizer := service.NewRasterizer(cfg.RasterOptions(), appLogger, c.Metrics,
		service.NewFitzStrategy(cfg.PageRenderTimeout, appLogger),
		service.NewPdftoppmStrategy(appLogger),
	)
	chunker := service.NewChunker(cfg.ChunkingOptions(), appLogger)
	extractor := service.NewExtractor(backend, service.ExtractorOptions{
		MaxParallelCalls: cfg.MaxParallelCalls,
		CallTimeout:      cfg.BackendTimeout,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseBackoff: cfg.RetryBackoff,
			MaxBackoff:  cfg.RetryMaxBackoff,
		},
		RateLimit:   cfg.BackendRateLimit,
		HighQuality: cfg.HighQuality,
	}, appLogger, c.Metrics)

	c.Pipeline = service.NewPipeline(acquirer, rasterizer, chunker, extractor, appLogger, c.Metrics, cfg.PipelineTimeout)

	// A nil *RedisResultCache must not end up inside the interface.
	var cache domain.ResultCache
	if cfg.RedisAddr != "" {
		redisCache, err := repository.NewRedisResultCache(ctx, repository.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			appLogger.Error("Result cache unavailable, continuing without it", err, "addr", cfg.RedisAddr)
		} else {
			cache = redisCache
			c.closers = append(c.closers, redisCache.Close)
		}
	}

	c.ExtractionService = service.NewExtractionService(
		c.Pipeline, cache, records, cfg.Fingerprint(), cfg.CacheTTL, appLogger, c.Metrics,
	)

	appLogger.Info("Container initialized",
		"backend", backend.Name(),
		"dpi", cfg.DPI,
		"max_pages", cfg.MaxPages,
		"max_parallel_calls", cfg.MaxParallelCalls,
		"cache", cache != nil,
		"records", records != nil,
		"local_sources", cfg.AllowLocalSources,
	)
	return c, nil
}

func (c *Container) newBackend(ctx context.Context) (domain.TextBackend, error) {
	cfg := c.Config
	switch cfg.ExtractionBackend {
	case "vertex":
		b, err := vertex.NewBackend(ctx, vertex.Options{
			ProjectID:       cfg.GCPProjectID,
			Location:        cfg.GCPLocation,
			Model:           cfg.ExtractionModel,
			CredentialsFile: cfg.GCPCredentialsFile,
		}, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex backend: %w", err)
		}
		c.closers = append(c.closers, b.Close)
		return b, nil
	case "openrouter":
		// Per-call deadlines come from the extractor's context.
		return openrouter.NewClient(cfg.OpenRouterAPIKey, cfg.OpenRouterURL, cfg.ExtractionModel, &http.Client{}), nil
	default:
		return nil, fmt.Errorf("unsupported extraction backend %q", cfg.ExtractionBackend)
	}
}

// Close releases backend and cache connections
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
