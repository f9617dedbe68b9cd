package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"pdf-vision-extractor/internal/domain"
	apperrors "pdf-vision-extractor/pkg/errors"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Details string `json:"details,omitempty"`
}

// GetRequestIDFromContext extracts the request ID set by RequestIDMiddleware
func GetRequestIDFromContext(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(requestIDContextKey).(string)
	return id, ok
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (helper function)
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// writeAppError maps an application error to its status code and body
func writeAppError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: "internal server error"}
	status := apperrors.GetStatusCode(err)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Type = string(appErr.Type)
		// Causes of server-side failures stay in the logs.
		if status < http.StatusInternalServerError {
			resp.Details = appErr.Details
		}
	}
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = string(stageErr.Stage)
	}

	writeJSON(w, status, resp)
}
