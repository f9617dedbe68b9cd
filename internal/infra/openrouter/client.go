package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"pdf-vision-extractor/internal/domain"
)

const (
	defaultURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel     = "google/gemini-2.0-flash-001"
	highQualityModel = "google/gemini-2.5-pro"
)

// Client handles communication with the OpenRouter chat completions API
type Client struct {
	apiKey      string
	url         string
	model       string
	highQuality string
	httpClient  *http.Client
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a new OpenRouter backend. An empty url or model selects the defaults.
func NewClient(apiKey, url, model string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		apiKey:      apiKey,
		url:         defaultURL,
		model:       defaultModel,
		highQuality: highQualityModel,
		httpClient:  httpClient,
	}
	if url != "" {
		c.url = url
	}
	if model != "" {
		c.model = model
		c.highQuality = model
	}
	return c
}

func (c *Client) Name() string {
	return "openrouter"
}

// ExtractText sends the chunk as a base64 data URL alongside the instruction
func (c *Client) ExtractText(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error) {
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	model := c.model
	if req.HighQuality {
		model = c.highQuality
	}

	body, err := json.Marshal(request{
		Model: model,
		Messages: []message{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Instruction},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", domain.ErrInvalidRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "pdf-vision-extractor")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", domain.ErrBackendUnavailable, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", domain.ErrBackendUnavailable)
	}

	return &domain.ExtractionResponse{
		Text:       parsed.Choices[0].Message.Content,
		TokenUsage: parsed.Usage.TotalTokens,
	}, nil
}

func classifyStatus(code int, body string) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRateLimited, code, body)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBackendTimeout, code, body)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrInvalidRequest, code, body)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrBackendUnavailable, code, body)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}
