package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-vision-extractor/internal/domain"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultModel     = "gemini-2.0-flash-001"
	highQualityModel = "gemini-2.5-pro"
)

// Backend extracts text from chunk images with a Gemini model on Vertex AI
type Backend struct {
	client      *genai.Client
	model       string
	highQuality string
	logger      domain.Logger
}

// Options configures the Vertex backend
type Options struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
}

// NewBackend creates a Vertex AI client
func NewBackend(ctx context.Context, opts Options, logger domain.Logger) (*Backend, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, opts.ProjectID, opts.Location, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex ai client: %w", err)
	}

	b := &Backend{
		client:      client,
		model:       defaultModel,
		highQuality: highQualityModel,
		logger:      logger,
	}
	if opts.Model != "" {
		b.model = opts.Model
		b.highQuality = opts.Model
	}
	return b, nil
}

func (b *Backend) Name() string {
	return "vertex"
}

// ExtractText sends one chunk image and returns the transcribed text
func (b *Backend) ExtractText(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResponse, error) {
	name := b.model
	if req.HighQuality {
		name = b.highQuality
	}
	model := b.client.GenerativeModel(name)
	model.SetTemperature(0)

	format := strings.TrimPrefix(req.MIMEType, "image/")
	if format == "" {
		format = "png"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Instruction), genai.ImageData(format, req.Image))
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: empty response from model", domain.ErrInvalidRequest)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	out := &domain.ExtractionResponse{Text: sb.String()}
	if resp.UsageMetadata != nil {
		out.TokenUsage = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

// Close releases the underlying gRPC connection
func (b *Backend) Close() error {
	return b.client.Close()
}

// classify maps gRPC status codes onto the backend error classes
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	switch st.Code() {
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
		return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", domain.ErrBackendTimeout, st.Message())
	default:
		return fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, st.Message())
	}
}
