package vertex

import (
	"context"
	"errors"
	"testing"

	"pdf-vision-extractor/internal/domain"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"quota exhausted", status.Error(codes.ResourceExhausted, "quota"), domain.ErrRateLimited},
		{"bad image", status.Error(codes.InvalidArgument, "bad image"), domain.ErrInvalidRequest},
		{"auth", status.Error(codes.PermissionDenied, "nope"), domain.ErrInvalidRequest},
		{"server deadline", status.Error(codes.DeadlineExceeded, "slow"), domain.ErrBackendTimeout},
		{"outage", status.Error(codes.Unavailable, "down"), domain.ErrBackendUnavailable},
		{"local deadline", context.DeadlineExceeded, domain.ErrBackendTimeout},
		{"plain error", errors.New("boom"), domain.ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}

func TestClassify_CanceledPassesThrough(t *testing.T) {
	err := classify(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, domain.IsTransient(err))
}
