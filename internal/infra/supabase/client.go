package supabase

import (
	"fmt"
	"sync"

	"pdf-vision-extractor/internal/domain"

	"github.com/supabase-community/supabase-go"
)

// SupabaseClient implements the domain.SupabaseClient interface
type SupabaseClient struct {
	client *supabase.Client
	url    string
	key    string
	logger domain.Logger

	once    sync.Once
	initErr error
}

// NewSupabaseClient creates a new Supabase client instance.
// The connection is established on the first Initialize call.
func NewSupabaseClient(url, key string, logger domain.Logger) *SupabaseClient {
	return &SupabaseClient{
		url:    url,
		key:    key,
		logger: logger,
	}
}

// Configured reports whether credentials were provided
func (s *SupabaseClient) Configured() bool {
	return s.url != "" && s.key != ""
}

func (s *SupabaseClient) DB() *supabase.Client {
	return s.client
}

// Initialize establishes a connection to Supabase
func (s *SupabaseClient) Initialize() error {
	s.once.Do(func() {
		if !s.Configured() {
			s.initErr = fmt.Errorf("supabase URL and key must be provided")
			return
		}

		client, err := supabase.NewClient(s.url, s.key, &supabase.ClientOptions{})
		if err != nil {
			s.initErr = fmt.Errorf("failed to create Supabase client: %w", err)
			return
		}

		s.client = client
		s.logger.Info("Supabase client initialized successfully", "url", s.url)
	})
	return s.initErr
}
