package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/service"
	apperrors "pdf-vision-extractor/pkg/errors"
)

type countingRasterizer struct {
	calls int
}

func (r *countingRasterizer) Rasterize(ctx context.Context, doc *domain.PDFDocument) ([]domain.PageImage, int, error) {
	r.calls++
	return nil, 0, errors.New("not rendering in tests")
}

type echoBackend struct{}

func (echoBackend) Name() string { return "echo" }

func (echoBackend) ExtractText(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error) {
	return &domain.ExtractionResponse{Text: "text"}, nil
}

// newRealExtractionHandler wires the real acquirer, pipeline and service
// the way the server does, with local sources left disabled.
func newRealExtractionHandler(rasterizer domain.PageRasterizer) *ExtractionHandler {
	logger := NewMockHandlerLogger()
	acquirer := service.NewAcquirer(time.Second, 1<<20, nil, logger)
	chunker := service.NewChunker(domain.ChunkingOptions{MaxLongSide: 2048, AspectTrigger: 2.7, OverlapPct: 0.05}, logger)
	extractor := service.NewExtractor(echoBackend{}, service.ExtractorOptions{
		MaxParallelCalls: 1,
		Retry:            service.RetryPolicy{MaxAttempts: 1},
	}, logger, nil)
	pipeline := service.NewPipeline(acquirer, rasterizer, chunker, extractor, logger, nil, 0)
	svc := service.NewExtractionService(pipeline, nil, nil, "fp", 0, logger, nil)
	return NewExtractionHandler(svc, 1<<20, logger)
}

func TestExtract_RejectsServerPaths(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "payroll.pdf")
	if err := os.WriteFile(secret, []byte("%PDF-1.4 confidential"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	sources := []string{
		"/etc/hostname",
		"file:///etc/hostname",
		secret,
		"file://" + secret,
		filepath.Join(dir, "does-not-exist.pdf"),
		"../../etc/passwd",
	}

	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			rasterizer := &countingRasterizer{}
			h := newRealExtractionHandler(rasterizer)

			body, _ := json.Marshal(map[string]string{"source": source})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", strings.NewReader(string(body)))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()

			h.Extract(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, rr.Code, rr.Body.String())
			}
			if rasterizer.calls != 0 {
				t.Fatalf("expected the document never to reach the rasterizer")
			}
			if strings.Contains(rr.Body.String(), "no such file") || strings.Contains(rr.Body.String(), "PDF header") {
				t.Fatalf("response reveals file system state: %s", rr.Body.String())
			}
		})
	}
}

func TestWriteAppError_OmitsCauseOnServerErrors(t *testing.T) {
	err := &domain.StageError{
		Stage: domain.StateDownloading,
		Err:   apperrors.NewAcquisitionError("failed to acquire document", errors.New("dial tcp 10.0.0.7:5432: connection refused")),
	}

	rr := httptest.NewRecorder()
	writeAppError(rr, err)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rr.Code)
	}
	if strings.Contains(rr.Body.String(), "10.0.0.7") {
		t.Fatalf("response leaks the underlying cause: %s", rr.Body.String())
	}
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Details != "" || body.Stage != "downloading" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
