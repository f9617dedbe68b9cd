// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/internal/service"
)

// ExtractionHandler serves text extraction requests
type ExtractionHandler struct {
	service       domain.ExtractionService
	maxUploadSize int64
	logger        domain.Logger
}

// NewExtractionHandler creates a new extraction handler
func NewExtractionHandler(extractionService domain.ExtractionService, maxUploadSize int64, logger domain.Logger) *ExtractionHandler {
	return &ExtractionHandler{
		service:       extractionService,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// Extract runs the pipeline for one document.
//
// A JSON body names a remote source: {"source": "https://...", "record_id": "..."}.
// Only http(s), data: and storage:// sources are accepted.
// A multipart body uploads the PDF itself in the "file" field, with an
// optional "record_id" field. ?format=text returns only the assembled text.
func (h *ExtractionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	job, status, err := h.parseJob(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	requestID, _ := GetRequestIDFromContext(r)
	h.logger.Info("Extraction requested", "request_id", requestID, "record_id", job.RecordID)

	result, err := h.service.Extract(r.Context(), job)
	if err != nil {
		h.logger.Error("Extraction failed", err, "request_id", requestID)
		writeAppError(w, err)
		return
	}

	w.Header().Set("X-Run-ID", result.RunID)
	w.Header().Set("X-Failed-Chunks", strconv.Itoa(result.Summary.FailedChunks))

	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, result.ExtractedText)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ExtractionHandler) parseJob(w http.ResponseWriter, r *http.Request) (domain.ExtractionJob, int, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		return h.parseUpload(w, r)
	}

	var job domain.ExtractionJob
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		return job, http.StatusBadRequest, errors.New("invalid JSON body")
	}
	job.Source = strings.TrimSpace(job.Source)
	if job.Source == "" {
		return job, http.StatusBadRequest, errors.New("source is required")
	}
	// Server-side paths are never readable over HTTP.
	if !service.IsRemoteSource(job.Source) {
		return job, http.StatusBadRequest, errors.New("source must be an http(s), data: or storage:// reference")
	}
	return job, 0, nil
}

// parseUpload turns an uploaded file into a data URI source so it goes
// through the same acquisition checks as any other source.
func (h *ExtractionHandler) parseUpload(w http.ResponseWriter, r *http.Request) (domain.ExtractionJob, int, error) {
	var job domain.ExtractionJob

	// Allow some room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return job, http.StatusRequestEntityTooLarge, errors.New("file too large")
		}
		return job, http.StatusBadRequest, errors.New("file is required")
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		return job, http.StatusRequestEntityTooLarge, errors.New("file too large")
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		return job, http.StatusBadRequest, errors.New("failed to read uploaded file")
	}
	if int64(len(data)) > h.maxUploadSize {
		return job, http.StatusRequestEntityTooLarge, errors.New("file too large")
	}

	job.Source = "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)
	job.RecordID = strings.TrimSpace(r.FormValue("record_id"))
	return job, 0, nil
}
