package parquet

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/codeintel/schema"
)

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	reader := parquet.NewGenericReader[T](file)
	defer reader.Close()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	return rows[:n]
}

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		model   any
		columns []string
	}{
		{"run", new(Run), []string{"run_id", "run_uuid", "root", "start_time", "end_time", "run_duration_ms",
			"total_files_analyzed", "total_failures", "total_snippets", "primary_language", "config_params"}},
		{"file metric", new(FileMetric), []string{"run_id", "file_path", "analysis_time", "language",
			"complexity_score", "element_count", "line_count", "is_hotspot", "duplicate_group"}},
		{"snippet", new(Snippet), []string{"id", "type", "language", "code", "frequency", "score",
			"contexts", "success_count", "failure_count", "created_at", "updated_at"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parquet.SchemaOf(tt.model)
			for _, col := range tt.columns {
				_, ok := s.Lookup(col)
				assert.True(t, ok, "column %s should exist", col)
			}
		})
	}
}

func TestWriteRunsParquet(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	duration := int32(1500)
	params := `{"languages":["go"]}`
	records := []schema.RunRecord{
		{RunID: 1, RunUUID: "u-1", Root: "/ws", StartTime: start, EndTime: &end, RunDurationMs: &duration,
			TotalFilesAnalyzed: 3, TotalFailures: 1, TotalSnippets: 7, PrimaryLanguage: "go", ConfigParams: &params},
		{RunID: 2, RunUUID: "u-2", Root: "/ws", StartTime: start.Add(time.Hour)},
	}

	out := filepath.Join(t.TempDir(), "runs.parquet")
	require.NoError(t, WriteRunsParquet(ConvertRunRecords(records), out))

	rows := readAll[Run](t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "u-1", rows[0].RunUUID)
	assert.Equal(t, int32(7), rows[0].TotalSnippets)
	assert.Equal(t, "go", rows[0].PrimaryLanguage)
	require.NotNil(t, rows[0].EndTime)
	assert.WithinDuration(t, end, *rows[0].EndTime, time.Nanosecond)
	require.NotNil(t, rows[0].ConfigParams)
	assert.Equal(t, params, *rows[0].ConfigParams)

	assert.Nil(t, rows[1].EndTime)
	assert.Nil(t, rows[1].RunDurationMs)
	assert.Nil(t, rows[1].ConfigParams)
}

func TestWriteFileMetricsParquet(t *testing.T) {
	group := "dup-1"
	records := []schema.FileRunRecord{
		{RunID: 1, FilePath: "a.py", AnalysisTime: time.Unix(100, 0).UTC(), Language: "python", ComplexityScore: 12,
			ElementCount: 4, LineCount: 40, IsHotspot: true, DuplicateGroup: &group},
		{RunID: 1, FilePath: "b.go", AnalysisTime: time.Unix(100, 0).UTC(), Language: "go", ComplexityScore: 2},
	}

	out := filepath.Join(t.TempDir(), "files.parquet")
	require.NoError(t, WriteFileMetricsParquet(ConvertFileRunRecords(records), out))

	rows := readAll[FileMetric](t, out)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsHotspot)
	require.NotNil(t, rows[0].DuplicateGroup)
	assert.Equal(t, group, *rows[0].DuplicateGroup)
	assert.Nil(t, rows[1].DuplicateGroup)
	assert.Equal(t, int32(2), rows[1].ComplexityScore)
}

func TestWriteSnippetsParquet(t *testing.T) {
	snippets := []schema.CodeSnippet{{
		ID:        "snp_1",
		Type:      schema.FunctionCallSnippet,
		Language:  "go",
		Code:      "foo()",
		Frequency: 10,
		Score:     0.9,
		Contexts:  []string{"go:function:run", "go:function:main"},
		Usage:     schema.SnippetUsage{SuccessCount: 3, FailureCount: 1},
	}}

	out := filepath.Join(t.TempDir(), "snippets.parquet")
	require.NoError(t, WriteSnippetsParquet(ConvertSnippets(snippets), out))

	rows := readAll[Snippet](t, out)
	require.Len(t, rows, 1)
	assert.Equal(t, string(schema.FunctionCallSnippet), rows[0].Type)
	assert.Equal(t, "go:function:run\ngo:function:main", rows[0].Contexts)
	assert.Equal(t, int32(3), rows[0].SuccessCount)
}

func TestWriteParquetEmptyData(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteRunsParquet(nil, out))
	assert.Empty(t, readAll[Run](t, out))
}

func TestWriteParquetInvalidPath(t *testing.T) {
	err := WriteFileMetricsParquet(nil, "/nonexistent/dir/out.parquet")
	assert.Error(t, err)
}
