// Package parquet exports run history and mined snippets to Parquet files
// using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/huangsam/codeintel/schema"
)

// Run is one workspace analysis run. It maps to the codeintel_runs table.
type Run struct {
	RunID   int64  `parquet:"run_id,snappy"`
	RunUUID string `parquet:"run_uuid,snappy"`
	Root    string `parquet:"root,snappy"`

	// StartTime and EndTime keep nanosecond precision
	StartTime time.Time  `parquet:"start_time,snappy"`
	EndTime   *time.Time `parquet:"end_time,optional,snappy"`

	RunDurationMs      *int32 `parquet:"run_duration_ms,optional,snappy"`
	TotalFilesAnalyzed int32  `parquet:"total_files_analyzed,snappy"`
	TotalFailures      int32  `parquet:"total_failures,snappy"`
	TotalSnippets      int32  `parquet:"total_snippets,snappy"`
	PrimaryLanguage    string `parquet:"primary_language,snappy"`

	// ConfigParams is the JSON-encoded configuration of the run
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// FileMetric is the structural summary of one file in a run.
// It maps to the codeintel_file_metrics table.
type FileMetric struct {
	RunID           int64     `parquet:"run_id,snappy"`
	FilePath        string    `parquet:"file_path,snappy"`
	AnalysisTime    time.Time `parquet:"analysis_time,snappy"`
	Language        string    `parquet:"language,snappy"`
	ComplexityScore int32     `parquet:"complexity_score,snappy"`
	ElementCount    int32     `parquet:"element_count,snappy"`
	LineCount       int32     `parquet:"line_count,snappy"`
	IsHotspot       bool      `parquet:"is_hotspot,snappy"`
	DuplicateGroup  *string   `parquet:"duplicate_group,optional,snappy"`
}

// Snippet is one mined snippet flattened for columnar analysis.
type Snippet struct {
	ID           string    `parquet:"id,snappy"`
	Type         string    `parquet:"type,snappy,dict"`
	Language     string    `parquet:"language,snappy,dict"`
	Code         string    `parquet:"code,snappy"`
	Frequency    int32     `parquet:"frequency,snappy"`
	Score        float64   `parquet:"score,snappy"`
	Contexts     string    `parquet:"contexts,snappy"` // Newline-separated
	SuccessCount int32     `parquet:"success_count,snappy"`
	FailureCount int32     `parquet:"failure_count,snappy"`
	CreatedAt    time.Time `parquet:"created_at,snappy"`
	UpdatedAt    time.Time `parquet:"updated_at,snappy"`
}

// WriteRunsParquet writes runs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteFileMetricsParquet writes file metrics to a Parquet file.
func WriteFileMetricsParquet(data []FileMetric, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteSnippetsParquet writes snippets to a Parquet file.
func WriteSnippetsParquet(data []Snippet, outputPath string) error {
	return writeParquet(data, outputPath)
}

// writeParquet infers the schema from the struct tags of T.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertRunRecords converts stored runs for export.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	result := make([]Run, len(records))
	for i, r := range records {
		result[i] = Run{
			RunID:              r.RunID,
			RunUUID:            r.RunUUID,
			Root:               r.Root,
			StartTime:          r.StartTime,
			EndTime:            r.EndTime,
			RunDurationMs:      r.RunDurationMs,
			TotalFilesAnalyzed: r.TotalFilesAnalyzed,
			TotalFailures:      r.TotalFailures,
			TotalSnippets:      r.TotalSnippets,
			PrimaryLanguage:    r.PrimaryLanguage,
			ConfigParams:       r.ConfigParams,
		}
	}
	return result
}

// ConvertFileRunRecords converts stored file metrics for export.
func ConvertFileRunRecords(records []schema.FileRunRecord) []FileMetric {
	result := make([]FileMetric, len(records))
	for i, r := range records {
		result[i] = FileMetric{
			RunID:           r.RunID,
			FilePath:        r.FilePath,
			AnalysisTime:    r.AnalysisTime,
			Language:        r.Language,
			ComplexityScore: r.ComplexityScore,
			ElementCount:    r.ElementCount,
			LineCount:       r.LineCount,
			IsHotspot:       r.IsHotspot,
			DuplicateGroup:  r.DuplicateGroup,
		}
	}
	return result
}

// ConvertSnippets flattens snippets for export.
func ConvertSnippets(snippets []schema.CodeSnippet) []Snippet {
	result := make([]Snippet, len(snippets))
	for i, s := range snippets {
		result[i] = Snippet{
			ID:           s.ID,
			Type:         string(s.Type),
			Language:     s.Language,
			Code:         s.Code,
			Frequency:    int32(s.Frequency),
			Score:        s.Score,
			Contexts:     strings.Join(s.Contexts, "\n"),
			SuccessCount: int32(s.Usage.SuccessCount),
			FailureCount: int32(s.Usage.FailureCount),
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		}
	}
	return result
}
