package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pdf-vision-extractor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText_Success(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Hello page"}}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, "", srv.Client())
	resp, err := c.ExtractText(context.Background(), domain.ExtractionRequest{
		Image:       []byte{0x89, 'P', 'N', 'G'},
		MIMEType:    "image/png",
		Instruction: "transcribe",
		HighQuality: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello page", resp.Text)
	assert.Equal(t, 42, resp.TokenUsage)
	assert.Equal(t, highQualityModel, got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "transcribe", got.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestExtractText_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"bad request", http.StatusBadRequest, domain.ErrInvalidRequest},
		{"unauthorized", http.StatusUnauthorized, domain.ErrInvalidRequest},
		{"gateway timeout", http.StatusGatewayTimeout, domain.ErrBackendTimeout},
		{"server error", http.StatusInternalServerError, domain.ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewClient("key", srv.URL, "m", srv.Client())
			_, err := c.ExtractText(context.Background(), domain.ExtractionRequest{Image: []byte("x")})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractText_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient("key", srv.URL, "m", srv.Client())
	_, err := c.ExtractText(ctx, domain.ExtractionRequest{Image: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrBackendTimeout)
}

func TestExtractText_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, "m", srv.Client())
	_, err := c.ExtractText(context.Background(), domain.ExtractionRequest{Image: []byte("x")})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}
