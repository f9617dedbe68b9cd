package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pdf-vision-extractor/internal/domain"
)

// SupabaseRecordRepository implements domain.RecordUpdater against a Supabase table
type SupabaseRecordRepository struct {
	supabaseClient domain.SupabaseClient
	table          string
	logger         domain.Logger
}

// NewSupabaseRecordRepository creates a new Supabase record repository
func NewSupabaseRecordRepository(supabaseClient domain.SupabaseClient, table string, logger domain.Logger) *SupabaseRecordRepository {
	return &SupabaseRecordRepository{
		supabaseClient: supabaseClient,
		table:          table,
		logger:         logger,
	}
}

// MarkProcessed writes extracted text and status onto the record with the given id
func (r *SupabaseRecordRepository) MarkProcessed(ctx context.Context, recordID string, update domain.RecordUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.supabaseClient.Initialize(); err != nil {
		return err
	}
	client := r.supabaseClient.DB()
	if client == nil {
		return fmt.Errorf("supabase client not initialized")
	}

	data := map[string]interface{}{
		"extracted_text":    removeNullBytes(update.ExtractedText),
		"processing_status": update.Status,
		"page_count":        update.PageCount,
		"updated_at":        update.UpdatedAt,
	}
	if update.ErrorMessage != "" {
		data["processing_error"] = removeNullBytes(update.ErrorMessage)
	}

	body, _, err := client.From(r.table).
		Update(data, "", "").
		Eq("id", recordID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, recordID)
	}

	r.logger.Debug("Record marked processed", "table", r.table, "record_id", recordID, "status", update.Status)
	return nil
}

// removeNullBytes strips NUL, which PostgreSQL text columns reject (22P05)
func removeNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
