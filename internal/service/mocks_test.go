package service

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"pdf-vision-extractor/internal/domain"
)

// MockLogger discards everything
type MockLogger struct{}

func NewMockLogger() domain.Logger {
	return &MockLogger{}
}

func (l *MockLogger) Info(msg string, fields ...interface{})             {}
func (l *MockLogger) Error(msg string, err error, fields ...interface{}) {}
func (l *MockLogger) Debug(msg string, fields ...interface{})            {}
func (l *MockLogger) Warn(msg string, fields ...interface{})             {}

// MockBackend answers with a per-call function and tracks concurrency
type MockBackend struct {
	respond func(ctx context.Context, call int, req domain.ExtractionRequest) (*domain.ExtractionResponse, error)
	delay   time.Duration

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) ExtractText(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error) {
	call := int(m.calls.Add(1))
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.respond == nil {
		return &domain.ExtractionResponse{Text: "ok", TokenUsage: 1}, nil
	}
	return m.respond(ctx, call, req)
}

// MockAcquirer returns a fixed document or error
type MockAcquirer struct {
	doc *domain.PDFDocument
	err error
}

func (m *MockAcquirer) Acquire(ctx context.Context, ref string) (*domain.PDFDocument, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

// MockRasterizer returns fixed pages or an error
type MockRasterizer struct {
	pages []domain.PageImage
	total int
	err   error
}

func (m *MockRasterizer) Rasterize(ctx context.Context, doc *domain.PDFDocument) ([]domain.PageImage, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	total := m.total
	if total == 0 {
		total = len(m.pages)
	}
	return m.pages, total, nil
}

// MockStrategy is a named raster strategy for chain tests
type MockStrategy struct {
	name  string
	pages []domain.PageImage
	err   error
	calls int
}

func (m *MockStrategy) Name() string { return m.name }

func (m *MockStrategy) Rasterize(ctx context.Context, data []byte, opts domain.RasterOptions) ([]domain.PageImage, int, error) {
	m.calls++
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.pages, len(m.pages), nil
}

// MockRecords records every update
type MockRecords struct {
	mu      sync.Mutex
	updates map[string]domain.RecordUpdate
	err     error
}

func NewMockRecords() *MockRecords {
	return &MockRecords{updates: make(map[string]domain.RecordUpdate)}
}

func (m *MockRecords) MarkProcessed(ctx context.Context, recordID string, update domain.RecordUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.updates[recordID] = update
	return nil
}

// MockCache is an in-memory result cache
type MockCache struct {
	mu      sync.Mutex
	entries map[string]*domain.PDFProcessingResult
	sets    int
}

func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string]*domain.PDFProcessingResult)}
}

func (m *MockCache) Get(ctx context.Context, key string) (*domain.PDFProcessingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.entries[key]; ok {
		return r, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCache) Set(ctx context.Context, key string, result *domain.PDFProcessingResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = result
	m.sets++
	return nil
}

// testPage builds a page with a horizontal gradient so crops differ
func testPage(index, width, height int) domain.PageImage {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		c := color.RGBA{R: uint8(x % 256), G: uint8(index), B: 0, A: 255}
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return domain.PageImage{Image: img, Width: width, Height: height, PageIndex: index}
}
