package service

import (
	"context"
	"fmt"

	"pdf-vision-extractor/internal/domain"
)

// SupabaseStorage downloads objects from Supabase Storage buckets
type SupabaseStorage struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

func NewStorageService(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseStorage {
	return &SupabaseStorage{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

// Download fetches bucket/path. The storage client has no context support,
// so the call is abandoned (not aborted) when ctx is done.
func (s *SupabaseStorage) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := s.supabaseClient.Initialize(); err != nil {
		return nil, err
	}
	client := s.supabaseClient.DB()
	if client == nil {
		return nil, fmt.Errorf("supabase client not initialized")
	}

	type result struct {
		data []byte
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := client.Storage.DownloadFile(bucket, path)
		resultCh <- result{data: data, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to download %s/%s: %w", bucket, path, res.err)
		}
		s.logger.Debug("Downloaded storage object", "bucket", bucket, "path", path, "bytes", len(res.data))
		return res.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
