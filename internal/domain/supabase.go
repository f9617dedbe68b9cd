package domain

import "github.com/supabase-community/supabase-go"

// SupabaseClient gives repositories and storage access to a lazily initialized client
type SupabaseClient interface {
	Initialize() error
	DB() *supabase.Client
}
