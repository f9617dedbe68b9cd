package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/metrics"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer tries each strategy in order; the first success wins
type Rasterizer struct {
	strategies []domain.RasterStrategy
	opts       domain.RasterOptions
	logger     domain.Logger
	metrics    *metrics.Recorder
}

// NewRasterizer creates a rasterizer over an ordered strategy list
func NewRasterizer(opts domain.RasterOptions, logger domain.Logger, recorder *metrics.Recorder, strategies ...domain.RasterStrategy) *Rasterizer {
	return &Rasterizer{
		strategies: strategies,
		opts:       opts,
		logger:     logger,
		metrics:    recorder,
	}
}

// Rasterize returns ordered zero-indexed pages (truncated at MaxPages) and the total page count.
// When every strategy fails the returned error joins all of their errors.
func (r *Rasterizer) Rasterize(ctx context.Context, doc *domain.PDFDocument) ([]domain.PageImage, int, error) {
	if len(r.strategies) == 0 {
		return nil, 0, errors.New("no rasterization strategies configured")
	}

	var errs []error
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		start := time.Now()
		pages, total, err := s.Rasterize(ctx, doc.Data, r.opts)
		if err == nil && len(pages) == 0 {
			err = domain.ErrEmptyDocument
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			r.logger.Warn("Rasterization strategy failed", "strategy", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}

		if total > len(pages) {
			r.logger.Info("Page count exceeds limit; truncating", "total_pages", total, "max_pages", r.opts.MaxPages)
		}
		r.logger.Info("Document rasterized", "strategy", s.Name(), "pages", len(pages), "dpi", r.opts.DPI, "duration_ms", time.Since(start).Milliseconds())
		r.metrics.PagesRasterized(len(pages))
		return pages, total, nil
	}

	return nil, 0, errors.Join(errs...)
}

// FitzStrategy renders pages in-process with MuPDF
type FitzStrategy struct {
	pageTimeout time.Duration
	logger      domain.Logger
}

func NewFitzStrategy(pageTimeout time.Duration, logger domain.Logger) *FitzStrategy {
	return &FitzStrategy{pageTimeout: pageTimeout, logger: logger}
}

func (f *FitzStrategy) Name() string {
	return "mupdf"
}

func (f *FitzStrategy) Rasterize(ctx context.Context, data []byte, opts domain.RasterOptions) ([]domain.PageImage, int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	// closeDoc is swapped out if a render goroutine is abandoned, so the
	// document is closed only after that goroutine has returned.
	closeDoc := func() { doc.Close() }
	defer func() { closeDoc() }()

	total := doc.NumPage()
	limit := total
	if opts.MaxPages > 0 && limit > opts.MaxPages {
		limit = opts.MaxPages
	}

	type pageResult struct {
		img *image.RGBA
		err error
	}

	pages := make([]domain.PageImage, 0, limit)
	for pageNum := 0; pageNum < limit; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		f.logger.Debug("Rendering page", "page", pageNum+1, "total", limit)

		resultCh := make(chan pageResult, 1)
		go func(idx int) {
			img, e := doc.ImageDPI(idx, float64(opts.DPI))
			resultCh <- pageResult{img: img, err: e}
		}(pageNum)

		var timeout <-chan time.Time
		var timer *time.Timer
		if f.pageTimeout > 0 {
			timer = time.NewTimer(f.pageTimeout)
			timeout = timer.C
		}

		select {
		case res := <-resultCh:
			if timer != nil {
				timer.Stop()
			}
			if res.err != nil {
				return nil, 0, fmt.Errorf("failed to render page %d: %w", pageNum+1, res.err)
			}
			b := res.img.Bounds()
			pages = append(pages, domain.PageImage{
				Image:     res.img,
				Width:     b.Dx(),
				Height:    b.Dy(),
				PageIndex: pageNum,
			})
		case <-timeout:
			closeDoc = func() {
				go func() {
					<-resultCh
					doc.Close()
				}()
			}
			return nil, 0, fmt.Errorf("page %d render timed out after %v", pageNum+1, f.pageTimeout)
		case <-ctx.Done():
			closeDoc = func() {
				go func() {
					<-resultCh
					doc.Close()
				}()
			}
			return nil, 0, ctx.Err()
		}
	}

	return pages, total, nil
}

// PdftoppmStrategy shells out to poppler's pdftoppm
type PdftoppmStrategy struct {
	binary string
	logger domain.Logger
}

func NewPdftoppmStrategy(logger domain.Logger) *PdftoppmStrategy {
	return &PdftoppmStrategy{binary: "pdftoppm", logger: logger}
}

func (p *PdftoppmStrategy) Name() string {
	return "pdftoppm"
}

func (p *PdftoppmStrategy) Rasterize(ctx context.Context, data []byte, opts domain.RasterOptions) ([]domain.PageImage, int, error) {
	if _, err := exec.LookPath(p.binary); err != nil {
		return nil, 0, fmt.Errorf("%s not installed: %w", p.binary, err)
	}

	dir, err := os.MkdirTemp("", "pdftoppm-*")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, 0, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	args := []string{"-r", strconv.Itoa(opts.DPI), "-png"}
	if opts.MaxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(opts.MaxPages))
	}
	args = append(args, input, filepath.Join(dir, "page"))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	files, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, 0, err
	}
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	sort.Strings(files)

	pages := make([]domain.PageImage, 0, len(files))
	for i, name := range files {
		img, err := decodePNGFile(name)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode page %d: %w", i+1, err)
		}
		b := img.Bounds()
		pages = append(pages, domain.PageImage{Image: img, Width: b.Dx(), Height: b.Dy(), PageIndex: i})
	}

	total := len(pages)
	if opts.MaxPages > 0 && total >= opts.MaxPages {
		if n, err := pdfinfoPageCount(ctx, input); err == nil {
			total = n
		} else {
			p.logger.Debug("pdfinfo unavailable; total page count unknown", "error", err)
		}
	}
	return pages, total, nil
}

func decodePNGFile(name string) (image.Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(bufio.NewReader(f))
}

func pdfinfoPageCount(ctx context.Context, input string) (int, error) {
	out, err := exec.CommandContext(ctx, "pdfinfo", input).Output()
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if rest, ok := strings.CutPrefix(line, "Pages:"); ok {
			return strconv.Atoi(strings.TrimSpace(rest))
		}
	}
	return 0, errors.New("pdfinfo output has no page count")
}
