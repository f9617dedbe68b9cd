package service

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"pdf-vision-extractor/internal/domain"
)

// Chunker splits page images into overlapping regions sized for the extraction backend
type Chunker struct {
	opts    domain.ChunkingOptions
	logger  domain.Logger
	encoder png.Encoder
}

func NewChunker(opts domain.ChunkingOptions, logger domain.Logger) *Chunker {
	return &Chunker{
		opts:    opts,
		logger:  logger,
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

type span struct {
	start  int
	extent int
}

// PlanChunks returns chunk rectangles in reading order. It depends only on
// the dimensions and options, so identical inputs always give identical boundaries.
//
// Pages wider than the aspect trigger are cut into vertical strips along x,
// all others into horizontal strips along y. The cross axis is only split
// when it alone exceeds MaxLongSide.
func PlanChunks(width, height int, opts domain.ChunkingOptions) []image.Rectangle {
	if width <= 0 || height <= 0 {
		return nil
	}
	if opts.MaxLongSide <= 0 || max(width, height) <= opts.MaxLongSide {
		return []image.Rectangle{image.Rect(0, 0, width, height)}
	}

	pct := opts.OverlapPct
	if pct < 0 || pct >= 1 {
		pct = 0
	}

	aspect := float64(width) / float64(height)
	var rects []image.Rectangle
	if aspect > opts.AspectTrigger {
		for _, x := range splitAxis(width, opts.MaxLongSide, pct) {
			for _, y := range splitAxis(height, opts.MaxLongSide, pct) {
				rects = append(rects, image.Rect(x.start, y.start, x.start+x.extent, y.start+y.extent))
			}
		}
		return rects
	}

	for _, y := range splitAxis(height, opts.MaxLongSide, pct) {
		for _, x := range splitAxis(width, opts.MaxLongSide, pct) {
			rects = append(rects, image.Rect(x.start, y.start, x.start+x.extent, y.start+y.extent))
		}
	}
	return rects
}

// splitAxis cuts [0,total) into spans of at most limit, each overlapping the
// next by floor(extent*pct). A tail no longer than the overlap would only
// repeat already-covered pixels, so it is folded into the previous span.
func splitAxis(total, limit int, pct float64) []span {
	if total <= limit {
		return []span{{start: 0, extent: total}}
	}

	var spans []span
	start := 0
	for {
		extent := min(total-start, limit)
		overlap := int(float64(extent) * pct)
		end := start + extent
		tail := total - end

		if tail > 0 && tail <= overlap {
			spans = append(spans, span{start: start, extent: total - start})
			return spans
		}
		spans = append(spans, span{start: start, extent: extent})
		if tail <= 0 {
			return spans
		}
		start = end - overlap
	}
}

// Chunk crops and encodes the page. Individual crop failures are skipped;
// if nothing could be produced the whole page becomes one chunk.
func (c *Chunker) Chunk(page domain.PageImage) (chunks []domain.ImageChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Chunking panicked; using whole page", "page", page.PageIndex, "panic", fmt.Sprint(r))
			chunks, err = c.safeWholePage(page)
		}
	}()

	rects := PlanChunks(page.Width, page.Height, c.opts)
	chunks = make([]domain.ImageChunk, 0, len(rects))
	for i, rect := range rects {
		data, cropErr := c.crop(page.Image, rect)
		if cropErr != nil {
			c.logger.Warn("Failed to crop chunk; skipping", "page", page.PageIndex, "chunk", i, "error", cropErr)
			continue
		}
		chunks = append(chunks, newChunk(page.PageIndex, i, rect, data))
	}

	if len(chunks) == 0 {
		return c.wholePage(page)
	}
	if len(chunks) > 1 {
		c.logger.Debug("Page split", "page", page.PageIndex, "chunks", len(chunks), "width", page.Width, "height", page.Height)
	}
	return chunks, nil
}

// safeWholePage is wholePage for use inside a recover handler
func (c *Chunker) safeWholePage(page domain.PageImage) (chunks []domain.ImageChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks, err = nil, fmt.Errorf("page %d could not be encoded: %v", page.PageIndex, r)
		}
	}()
	return c.wholePage(page)
}

func (c *Chunker) wholePage(page domain.PageImage) ([]domain.ImageChunk, error) {
	if page.Image == nil {
		return nil, fmt.Errorf("page %d has no image", page.PageIndex)
	}
	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, page.Image); err != nil {
		return nil, fmt.Errorf("failed to encode page %d: %w", page.PageIndex, err)
	}
	// Size the chunk from the pixels actually encoded, not the declared page size.
	b := page.Image.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())
	return []domain.ImageChunk{newChunk(page.PageIndex, 0, rect, buf.Bytes())}, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func (c *Chunker) crop(src image.Image, rect image.Rectangle) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("nil image")
	}
	// Plans are relative to (0,0); source bounds may not be.
	r := rect.Add(src.Bounds().Min)
	if !r.In(src.Bounds()) {
		return nil, fmt.Errorf("chunk %v outside image bounds %v", r, src.Bounds())
	}

	var region image.Image
	if si, ok := src.(subImager); ok {
		region = si.SubImage(r)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
		region = dst
	}

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, region); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newChunk(pageIndex, chunkIndex int, rect image.Rectangle, data []byte) domain.ImageChunk {
	return domain.ImageChunk{
		ID:         fmt.Sprintf("p%d-c%d", pageIndex, chunkIndex),
		Data:       data,
		Width:      rect.Dx(),
		Height:     rect.Dy(),
		OriginX:    rect.Min.X,
		OriginY:    rect.Min.Y,
		ChunkIndex: chunkIndex,
		PageIndex:  pageIndex,
	}
}
