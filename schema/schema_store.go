package schema

import "time"

// FileRunMetrics is the per-file row recorded for a workspace run.
type FileRunMetrics struct {
	AnalysisTime    time.Time
	Language        string
	ComplexityScore int
	ElementCount    int
	LineCount       int
	IsHotspot       bool
	DuplicateGroup  string
}

// RunRecord represents a row from the codeintel_runs table.
type RunRecord struct {
	RunID              int64
	RunUUID            string
	Root               string
	StartTime          time.Time
	EndTime            *time.Time
	RunDurationMs      *int32
	TotalFilesAnalyzed int32
	TotalFailures      int32
	TotalSnippets      int32
	PrimaryLanguage    string
	ConfigParams       *string
}

// FileRunRecord represents a row from the codeintel_file_metrics table.
type FileRunRecord struct {
	RunID           int64
	FilePath        string
	AnalysisTime    time.Time
	Language        string
	ComplexityScore int32
	ElementCount    int32
	LineCount       int32
	IsHotspot       bool
	DuplicateGroup  *string
}
