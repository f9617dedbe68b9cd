package domain

import "context"

// ObjectStorage downloads objects from a bucket-based store
type ObjectStorage interface {
	Download(ctx context.Context, bucket, path string) ([]byte, error)
}
