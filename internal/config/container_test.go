package config

import (
	"context"
	"io"
	"testing"

	apperrors "pdf-vision-extractor/pkg/errors"
	"pdf-vision-extractor/pkg/logger"
)

func TestNewContainerWithConfig_OpenRouter(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("EXTRACTION_BACKEND", "openrouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	c, err := NewContainerWithConfig(context.Background(), cfg, logger.NewLoggerWithWriter("error", "json", io.Discard))
	if err != nil {
		t.Fatalf("expected container, got %v", err)
	}
	defer c.Close()

	if c.Backend.Name() != "openrouter" {
		t.Fatalf("expected openrouter backend, got %s", c.Backend.Name())
	}
	if c.Pipeline == nil || c.ExtractionService == nil || c.Metrics == nil {
		t.Fatal("expected pipeline, service and metrics to be wired")
	}
	if c.SupabaseClient.Configured() {
		t.Fatal("expected supabase to be unconfigured")
	}
	_, err = c.Pipeline.Run(context.Background(), "/etc/hostname")
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("expected local paths to be rejected by default, got %v", err)
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACTION_BACKEND", "carrier-pigeon")

	if _, err := NewContainer(context.Background()); err == nil {
		t.Fatal("expected an error for an unsupported backend")
	}
}
