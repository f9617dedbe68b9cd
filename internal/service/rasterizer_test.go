package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"pdf-vision-extractor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterizer_FirstSuccessWins(t *testing.T) {
	broken := &MockStrategy{name: "broken", err: errors.New("no renderer")}
	working := &MockStrategy{name: "working", pages: []domain.PageImage{testPage(0, 10, 10)}}
	unused := &MockStrategy{name: "unused", pages: []domain.PageImage{testPage(0, 10, 10)}}

	r := NewRasterizer(domain.RasterOptions{DPI: 72, MaxPages: 5}, NewMockLogger(), nil, broken, working, unused)
	pages, total, err := r.Rasterize(context.Background(), &domain.PDFDocument{Data: minimalPDF})

	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, working.calls)
	assert.Equal(t, 0, unused.calls)
}

func TestRasterizer_JoinsAllErrors(t *testing.T) {
	errA := errors.New("mupdf exploded")
	errB := errors.New("pdftoppm missing")
	r := NewRasterizer(domain.RasterOptions{DPI: 72, MaxPages: 5}, NewMockLogger(), nil,
		&MockStrategy{name: "a", err: errA},
		&MockStrategy{name: "b", err: errB},
	)

	_, _, err := r.Rasterize(context.Background(), &domain.PDFDocument{Data: minimalPDF})

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), "a: mupdf exploded")
}

func TestRasterizer_EmptyOutputIsFailure(t *testing.T) {
	r := NewRasterizer(domain.RasterOptions{DPI: 72, MaxPages: 5}, NewMockLogger(), nil, &MockStrategy{name: "empty"})

	_, _, err := r.Rasterize(context.Background(), &domain.PDFDocument{Data: minimalPDF})

	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}

func TestRasterizer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &MockStrategy{name: "a", pages: []domain.PageImage{testPage(0, 1, 1)}}
	r := NewRasterizer(domain.RasterOptions{DPI: 72}, NewMockLogger(), nil, s)

	_, _, err := r.Rasterize(ctx, &domain.PDFDocument{Data: minimalPDF})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.calls)
}

func TestFitzStrategy_RejectsGarbage(t *testing.T) {
	s := NewFitzStrategy(time.Second, NewMockLogger())
	_, _, err := s.Rasterize(context.Background(), []byte("definitely not a pdf"), domain.RasterOptions{DPI: 72, MaxPages: 1})
	assert.Error(t, err)
}

// threePagePDF has no xref table; MuPDF reconstructs it on open.
func threePagePDF() []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R 4 0 R 5 0 R] /Count 3 >>\nendobj\n")
	for i := 3; i <= 5; i++ {
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] >>\nendobj\n", i)
	}
	b.WriteString("trailer\n<< /Root 1 0 R /Size 6 >>\n%%EOF\n")
	return []byte(b.String())
}

func TestFitzStrategy_TruncatesAtMaxPages(t *testing.T) {
	s := NewFitzStrategy(10*time.Second, NewMockLogger())

	pages, total, err := s.Rasterize(context.Background(), threePagePDF(), domain.RasterOptions{DPI: 72, MaxPages: 2})

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, pages, 2)
	for i, p := range pages {
		assert.Equal(t, i, p.PageIndex)
		assert.Equal(t, 200, p.Width)
		assert.Equal(t, 100, p.Height)
		assert.Equal(t, p.Width, p.Image.Bounds().Dx())
	}
}

func TestRasterizer_ReportsTotalAndProcessedPages(t *testing.T) {
	r := NewRasterizer(domain.RasterOptions{DPI: 72, MaxPages: 2}, NewMockLogger(), nil,
		NewFitzStrategy(10*time.Second, NewMockLogger()))

	pages, total, err := r.Rasterize(context.Background(), &domain.PDFDocument{Data: threePagePDF()})

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, pages, 2)

	pages, total, err = NewRasterizer(domain.RasterOptions{DPI: 72, MaxPages: 10}, NewMockLogger(), nil,
		NewFitzStrategy(10*time.Second, NewMockLogger())).Rasterize(context.Background(), &domain.PDFDocument{Data: threePagePDF()})

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, pages, 3)
}
