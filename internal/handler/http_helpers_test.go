package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pdf-vision-extractor/internal/domain"
	apperrors "pdf-vision-extractor/pkg/errors"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusTeapot, "nope")

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content type application/json, got %s", ct)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"nope"}` {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantStage  string
	}{
		{
			name: "stage error",
			err: &domain.StageError{
				Stage: domain.StateDownloading,
				Err:   apperrors.NewInvalidDocumentError("source is not a PDF document", domain.ErrInvalidDocument),
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   "invalid_document",
			wantStage:  "downloading",
		},
		{
			name:       "validation",
			err:        apperrors.NewValidationError("source cannot be empty", "source"),
			wantStatus: http.StatusBadRequest,
			wantType:   "validation",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeAppError(rr, tt.err)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Type != tt.wantType || body.Stage != tt.wantStage {
				t.Fatalf("unexpected body: %+v", body)
			}
			if body.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}
