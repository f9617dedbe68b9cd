package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pdf-vision-extractor/internal/domain"
)

// AppConfig holds the environment-sourced configuration
type AppConfig struct {
	ServerPort string
	LogLevel   string
	LogFormat  string

	// CORSAllowedOrigins is empty to allow any origin
	CORSAllowedOrigins []string

	// Acquisition
	MaxFileSize    int64
	AcquireTimeout time.Duration

	// Rasterization
	DPI               int
	MaxPages          int
	PageRenderTimeout time.Duration

	// Chunking
	ChunkMaxLongSide   int
	ChunkAspectTrigger float64
	ChunkOverlapPct    float64

	// Extraction
	MaxParallelCalls   int
	BackendTimeout     time.Duration
	MaxRetryAttempts   int
	RetryBackoff       time.Duration
	RetryMaxBackoff    time.Duration
	BackendRateLimit   float64
	PipelineTimeout    time.Duration
	ExtractionBackend  string
	ExtractionModel    string
	HighQuality        bool
	GCPProjectID       string
	GCPLocation        string
	GCPCredentialsFile string
	OpenRouterAPIKey   string
	OpenRouterURL      string

	// Record store
	SupabaseURL  string
	SupabaseKey  string
	RecordsTable string

	// Result cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// AllowLocalSources lets jobs name local paths and file:// URIs.
	// The CLI enables it; the HTTP server should not.
	AllowLocalSources bool

	// envErr is the first typed variable that failed to parse
	envErr error
}

// NewConfig creates a new configuration instance with default values
func NewConfig() *AppConfig {
	c := &AppConfig{
		// Cloud Run (and many PaaS) provide the listening port via PORT.
		// Keep SERVER_PORT for local/dev compatibility.
		ServerPort: getEnvOrDefault("PORT", getEnvOrDefault("SERVER_PORT", "8080")),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:  getEnvOrDefault("LOG_FORMAT", "json"),

		CORSAllowedOrigins: getEnvListOrDefault("CORS_ALLOWED_ORIGINS", nil),

		MaxFileSize:    getEnvInt64OrDefault("MAX_FILE_SIZE", 50*1024*1024), // 50MB default
		AcquireTimeout: getEnvSecondsOrDefault("ACQUIRE_TIMEOUT_SECONDS", 30),

		DPI:               getEnvIntOrDefault("PDF_DPI", 150),
		MaxPages:          getEnvIntOrDefault("MAX_PAGES", 50),
		PageRenderTimeout: getEnvSecondsOrDefault("PAGE_RENDER_TIMEOUT_SECONDS", 90),

		ChunkMaxLongSide:   getEnvIntOrDefault("CHUNK_MAX_LONG_SIDE", 2048),
		ChunkAspectTrigger: getEnvFloatOrDefault("CHUNK_ASPECT_TRIGGER", 2.7),
		ChunkOverlapPct:    getEnvFloatOrDefault("CHUNK_OVERLAP_PCT", 0.05),

		MaxParallelCalls:   getEnvIntOrDefault("MAX_PARALLEL_CALLS", 5),
		BackendTimeout:     getEnvSecondsOrDefault("BACKEND_TIMEOUT_SECONDS", 60),
		MaxRetryAttempts:   getEnvIntOrDefault("MAX_RETRY_ATTEMPTS", 3),
		RetryBackoff:       getEnvSecondsOrDefault("RETRY_BACKOFF_SECONDS", 1),
		RetryMaxBackoff:    getEnvSecondsOrDefault("RETRY_MAX_BACKOFF_SECONDS", 30),
		BackendRateLimit:   getEnvFloatOrDefault("BACKEND_RATE_LIMIT_RPS", 0),
		PipelineTimeout:    getEnvSecondsOrDefault("PIPELINE_TIMEOUT_SECONDS", 0),
		ExtractionBackend:  strings.ToLower(getEnvOrDefault("EXTRACTION_BACKEND", "vertex")),
		ExtractionModel:    getEnvOrDefault("EXTRACTION_MODEL", ""),
		HighQuality:        getEnvBoolOrDefault("EXTRACTION_HIGH_QUALITY", true),
		GCPProjectID:       getEnvOrDefault("GCP_PROJECT_ID", ""),
		GCPLocation:        getEnvOrDefault("GCP_LOCATION", "us-central1"),
		GCPCredentialsFile: getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		OpenRouterAPIKey:   getEnvOrDefault("OPENROUTER_API_KEY", ""),
		OpenRouterURL:      getEnvOrDefault("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),

		SupabaseURL:  getEnvOrDefault("SUPABASE_URL", ""),
		SupabaseKey:  getEnvOrDefault("SUPABASE_SERVICE_KEY", ""),
		RecordsTable: getEnvOrDefault("SUPABASE_RECORDS_TABLE", "documents"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		CacheTTL:      getEnvSecondsOrDefault("CACHE_TTL_SECONDS", 24*60*60),

		AllowLocalSources: getEnvBoolOrDefault("ALLOW_LOCAL_SOURCES", false),
	}
	c.envErr = checkTypedEnv()
	return c
}

// Validate rejects configurations the pipeline cannot run with.
// It is called once at startup.
func (c *AppConfig) Validate() error {
	if c.envErr != nil {
		return c.envErr
	}

	switch {
	case c.DPI <= 0:
		return &domain.ValidationError{Field: "PDF_DPI", Message: "must be positive"}
	case c.MaxPages <= 0:
		return &domain.ValidationError{Field: "MAX_PAGES", Message: "must be positive"}
	case c.ChunkMaxLongSide <= 0:
		return &domain.ValidationError{Field: "CHUNK_MAX_LONG_SIDE", Message: "must be positive"}
	case c.ChunkAspectTrigger <= 0:
		return &domain.ValidationError{Field: "CHUNK_ASPECT_TRIGGER", Message: "must be positive"}
	case c.ChunkOverlapPct < 0 || c.ChunkOverlapPct >= 1:
		return &domain.ValidationError{Field: "CHUNK_OVERLAP_PCT", Message: "must be in [0, 1)"}
	case c.MaxParallelCalls <= 0:
		return &domain.ValidationError{Field: "MAX_PARALLEL_CALLS", Message: "must be positive"}
	case c.BackendTimeout <= 0:
		return &domain.ValidationError{Field: "BACKEND_TIMEOUT_SECONDS", Message: "must be positive"}
	case c.MaxRetryAttempts < 1:
		return &domain.ValidationError{Field: "MAX_RETRY_ATTEMPTS", Message: "must be at least 1"}
	case c.RetryBackoff < 0:
		return &domain.ValidationError{Field: "RETRY_BACKOFF_SECONDS", Message: "cannot be negative"}
	case c.AcquireTimeout <= 0:
		return &domain.ValidationError{Field: "ACQUIRE_TIMEOUT_SECONDS", Message: "must be positive"}
	case c.BackendRateLimit < 0:
		return &domain.ValidationError{Field: "BACKEND_RATE_LIMIT_RPS", Message: "cannot be negative"}
	}

	switch c.ExtractionBackend {
	case "vertex":
		if c.GCPProjectID == "" {
			return &domain.ValidationError{Field: "GCP_PROJECT_ID", Message: "required for the vertex backend"}
		}
	case "openrouter":
		if c.OpenRouterAPIKey == "" {
			return &domain.ValidationError{Field: "OPENROUTER_API_KEY", Message: "required for the openrouter backend"}
		}
	default:
		return &domain.ValidationError{Field: "EXTRACTION_BACKEND", Message: fmt.Sprintf("unsupported backend %q", c.ExtractionBackend)}
	}
	return nil
}

// ChunkingOptions returns the chunker settings
func (c *AppConfig) ChunkingOptions() domain.ChunkingOptions {
	return domain.ChunkingOptions{
		MaxLongSide:   c.ChunkMaxLongSide,
		AspectTrigger: c.ChunkAspectTrigger,
		OverlapPct:    c.ChunkOverlapPct,
	}
}

// RasterOptions returns the rasterizer settings
func (c *AppConfig) RasterOptions() domain.RasterOptions {
	return domain.RasterOptions{DPI: c.DPI, MaxPages: c.MaxPages}
}

// Fingerprint identifies every setting that changes pipeline output.
// Used as part of result cache keys.
func (c *AppConfig) Fingerprint() string {
	raw := fmt.Sprintf("%d|%d|%d|%g|%g|%s|%s|%t",
		c.DPI, c.MaxPages, c.ChunkMaxLongSide, c.ChunkAspectTrigger, c.ChunkOverlapPct,
		c.ExtractionBackend, c.ExtractionModel, c.HighQuality)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// Helper functions for environment variable handling
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	return int(getEnvInt64OrDefault(key, int64(defaultValue)))
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvSecondsOrDefault accepts fractional seconds ("0.5")
func getEnvSecondsOrDefault(key string, defaultSeconds float64) time.Duration {
	secs := getEnvFloatOrDefault(key, defaultSeconds)
	return time.Duration(secs * float64(time.Second))
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

type envKind int

const (
	envInt envKind = iota
	envFloat
	envBool
)

// typedEnv lists every variable read through a parsing helper. The helpers
// fall back to defaults on bad input, so Validate reports it instead.
var typedEnv = []struct {
	key  string
	kind envKind
}{
	{"MAX_FILE_SIZE", envInt},
	{"ACQUIRE_TIMEOUT_SECONDS", envFloat},
	{"PDF_DPI", envInt},
	{"MAX_PAGES", envInt},
	{"PAGE_RENDER_TIMEOUT_SECONDS", envFloat},
	{"CHUNK_MAX_LONG_SIDE", envInt},
	{"CHUNK_ASPECT_TRIGGER", envFloat},
	{"CHUNK_OVERLAP_PCT", envFloat},
	{"MAX_PARALLEL_CALLS", envInt},
	{"BACKEND_TIMEOUT_SECONDS", envFloat},
	{"MAX_RETRY_ATTEMPTS", envInt},
	{"RETRY_BACKOFF_SECONDS", envFloat},
	{"RETRY_MAX_BACKOFF_SECONDS", envFloat},
	{"BACKEND_RATE_LIMIT_RPS", envFloat},
	{"PIPELINE_TIMEOUT_SECONDS", envFloat},
	{"EXTRACTION_HIGH_QUALITY", envBool},
	{"REDIS_DB", envInt},
	{"CACHE_TTL_SECONDS", envFloat},
	{"ALLOW_LOCAL_SOURCES", envBool},
}

func checkTypedEnv() error {
	for _, v := range typedEnv {
		raw := os.Getenv(v.key)
		if raw == "" {
			continue
		}
		var err error
		switch v.kind {
		case envInt:
			_, err = strconv.ParseInt(raw, 10, 64)
		case envFloat:
			_, err = strconv.ParseFloat(raw, 64)
		case envBool:
			_, err = strconv.ParseBool(raw)
		}
		if err != nil {
			return &domain.ValidationError{Field: v.key, Message: fmt.Sprintf("cannot parse %q", raw)}
		}
	}
	return nil
}
