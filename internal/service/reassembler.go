package service

import (
	"sort"
	"strings"
	"unicode/utf8"

	"pdf-vision-extractor/internal/domain"
)

// Reassemble orders results by (page, chunk) and joins them into page and
// document text. The output does not depend on the order of results.
// pageCount pages are always reported, including pages that produced no chunks.
func Reassemble(results []domain.ExtractionResult, pageCount int) (string, []domain.PageResult) {
	sorted := make([]domain.ExtractionResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PageIndex != sorted[j].PageIndex {
			return sorted[i].PageIndex < sorted[j].PageIndex
		}
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})

	for _, r := range sorted {
		if r.PageIndex+1 > pageCount {
			pageCount = r.PageIndex + 1
		}
	}

	pages := make([]domain.PageResult, pageCount)
	texts := make([][]string, pageCount)
	for i := range pages {
		pages[i].PageIndex = i
	}

	for _, r := range sorted {
		if r.PageIndex < 0 {
			continue
		}
		p := &pages[r.PageIndex]
		p.ChunkCount++
		if !r.Success {
			p.FailedChunks++
		}
		texts[r.PageIndex] = append(texts[r.PageIndex], sanitizeText(r.Text))
	}

	pageTexts := make([]string, pageCount)
	for i := range pages {
		pages[i].Text = strings.TrimSpace(strings.Join(texts[i], "\n"))
		pageTexts[i] = pages[i].Text
	}

	return strings.Join(pageTexts, domain.PageBreakMarker), pages
}

// sanitizeText drops NUL and other control characters (keeping tab, newline
// and carriage return), invalid UTF-8 and surrounding code fences.
// PostgreSQL text columns reject NUL.
func sanitizeText(text string) string {
	var result strings.Builder
	result.Grow(len(text))

	for i, w := 0, 0; i < len(text); i += w {
		r, width := utf8.DecodeRuneInString(text[i:])
		w = width
		if r == utf8.RuneError && width == 1 {
			continue
		}
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			result.WriteRune(r)
		case r < 0x20 || r == 0x7F:
			// control character
		default:
			result.WriteRune(r)
		}
	}

	return stripCodeFence(strings.TrimSpace(result.String()))
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	body := strings.TrimSuffix(text[3:], "```")
	// drop an optional language tag on the opening fence line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], " \t") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}
