package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"pdf-vision-extractor/internal/domain"
)

const (
	pdfMagic          = "%PDF-"
	magicSearchWindow = 1024
)

// Acquirer fetches raw PDF bytes from a URL, data URI, storage object or,
// when enabled, a local file. Acquisition is never retried.
type Acquirer struct {
	httpClient  *http.Client
	storage     domain.ObjectStorage
	timeout     time.Duration
	maxFileSize int64
	allowLocal  bool
	logger      domain.Logger
}

// NewAcquirer creates an acquirer. storage may be nil when no object store is configured.
func NewAcquirer(timeout time.Duration, maxFileSize int64, storage domain.ObjectStorage, logger domain.Logger) *Acquirer {
	return &Acquirer{
		httpClient:  &http.Client{},
		storage:     storage,
		timeout:     timeout,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// SetAllowLocal enables plain paths and file:// sources. Off by default;
// only the CLI turns it on.
func (a *Acquirer) SetAllowLocal(allow bool) {
	a.allowLocal = allow
}

// IsRemoteSource reports whether ref is an http(s), data or storage source
func IsRemoteSource(ref string) bool {
	for _, prefix := range []string{"http://", "https://", "data:", "storage://"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// Acquire resolves ref and validates the PDF header
func (a *Acquirer) Acquire(ctx context.Context, ref string) (*domain.PDFDocument, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &domain.ValidationError{Field: "source", Message: "source cannot be empty"}
	}
	if !a.allowLocal && !IsRemoteSource(ref) {
		return nil, &domain.ValidationError{Field: "source", Message: "source must be an http(s), data: or storage:// reference"}
	}

	parent := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := a.fetch(ctx, ref)
	if err != nil {
		// The caller's own deadline or cancellation is not an acquisition timeout.
		if parentErr := parent.Err(); parentErr != nil {
			return nil, fmt.Errorf("%w: %v", parentErr, err)
		}
		if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
			return nil, fmt.Errorf("%w after %v: %v", domain.ErrAcquisitionTimeout, a.timeout, err)
		}
		return nil, err
	}

	if !hasPDFHeader(data) {
		return nil, domain.ErrInvalidDocument
	}

	a.logger.Info("Document acquired", "source", redactSource(ref), "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return &domain.PDFDocument{Data: data, Source: ref}, nil
}

func (a *Acquirer) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return a.fetchHTTP(ctx, ref)
	case strings.HasPrefix(ref, "data:"):
		return a.decodeDataURI(ref)
	case strings.HasPrefix(ref, "storage://"):
		return a.fetchStorage(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		return a.readFile(strings.TrimPrefix(ref, "file://"))
	default:
		return a.readFile(ref)
	}
}

func (a *Acquirer) fetchHTTP(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &domain.ValidationError{Field: "source", Message: "invalid URL: " + err.Error()}
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download document: HTTP %d", resp.StatusCode)
	}

	return a.readLimited(resp.Body)
}

func (a *Acquirer) decodeDataURI(ref string) ([]byte, error) {
	comma := strings.IndexByte(ref, ',')
	if comma < 0 {
		return nil, &domain.ValidationError{Field: "source", Message: "malformed data URI"}
	}
	meta, payload := ref[len("data:"):comma], ref[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, &domain.ValidationError{Field: "source", Message: "data URI must be base64 encoded"}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &domain.ValidationError{Field: "source", Message: "invalid base64 payload"}
	}
	if a.maxFileSize > 0 && int64(len(data)) > a.maxFileSize {
		return nil, fmt.Errorf("document exceeds maximum size of %d bytes", a.maxFileSize)
	}
	return data, nil
}

func (a *Acquirer) fetchStorage(ctx context.Context, ref string) ([]byte, error) {
	if a.storage == nil {
		return nil, &domain.ValidationError{Field: "source", Message: "object storage is not configured"}
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" || strings.Trim(u.Path, "/") == "" {
		return nil, &domain.ValidationError{Field: "source", Message: "storage reference must be storage://bucket/path"}
	}
	data, err := a.storage.Download(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return nil, err
	}
	if a.maxFileSize > 0 && int64(len(data)) > a.maxFileSize {
		return nil, fmt.Errorf("document exceeds maximum size of %d bytes", a.maxFileSize)
	}
	return data, nil
}

func (a *Acquirer) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	return a.readLimited(f)
}

func (a *Acquirer) readLimited(r io.Reader) ([]byte, error) {
	if a.maxFileSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if int64(len(data)) > a.maxFileSize {
		return nil, fmt.Errorf("document exceeds maximum size of %d bytes", a.maxFileSize)
	}
	return data, nil
}

// hasPDFHeader looks for the magic bytes near the start of the file.
// Some producers prepend junk before the header.
func hasPDFHeader(data []byte) bool {
	window := data
	if len(window) > magicSearchWindow {
		window = window[:magicSearchWindow]
	}
	return bytes.Contains(window, []byte(pdfMagic))
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redactSource keeps data URIs and signed URL query strings out of logs
func redactSource(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		return "data:<inline>"
	}
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		return ref[:i]
	}
	return ref
}
