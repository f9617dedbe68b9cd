package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdf-vision-extractor/internal/config"
	"pdf-vision-extractor/internal/domain"
	"pdf-vision-extractor/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	extractOutputPath string
	extractJSON       bool
	extractRecordID   string
	extractTimeout    time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract <source>",
	Short: "Extract the text of one PDF",
	Long: `Extract the text of one PDF. The source may be a local path, a file://,
http(s):// or data: URI, or storage://bucket/path for Supabase storage.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutputPath, "output", "o", "", "write output to this file instead of stdout")
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "print the full result as JSON")
	extractCmd.Flags().StringVar(&extractRecordID, "record-id", "", "record to mark as processed when done")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 0, "overall deadline for the run (0 for none)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, extractTimeout)
		defer cancel()
	}

	cfg := config.NewConfig()
	cfg.AllowLocalSources = true
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	container, err := config.NewContainerWithConfig(ctx, cfg, logger.NewLoggerWithWriter(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer container.Close()

	stderr := cmd.ErrOrStderr()
	if verbose {
		container.Pipeline.SetObserver(func(runID string, state domain.PipelineState) {
			fmt.Fprintf(stderr, "[%s] %s\n", runID[:8], state)
		})
	}

	result, err := container.ExtractionService.Extract(ctx, domain.ExtractionJob{
		Source:   args[0],
		RecordID: extractRecordID,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if extractOutputPath != "" {
		f, err := os.Create(extractOutputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeResult(out, result, extractJSON); err != nil {
		return err
	}

	s := result.Summary
	fmt.Fprintf(stderr, "pages %d/%d, chunks %d (%d failed), tokens %d, %.1fs\n",
		result.ProcessedPages, result.TotalPages, s.TotalChunks, s.FailedChunks,
		s.TotalTokensUsed, float64(s.TotalProcessingTimeMs)/1000)
	for _, e := range s.Errors {
		fmt.Fprintf(stderr, "  %s\n", e)
	}
	return nil
}

func writeResult(w io.Writer, result *domain.PDFProcessingResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	_, err := io.WriteString(w, result.ExtractedText+"\n")
	return err
}
