package outwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSnippets() []schema.CodeSnippet {
	return []schema.CodeSnippet{
		{
			ID:        "snp_aaaa",
			Type:      schema.FunctionCallSnippet,
			Code:      "requests.get(url,\n    timeout=5)",
			Language:  "python",
			Frequency: 12,
			Score:     0.91,
			Contexts:  []string{"python:function:fetch", "python:function:load"},
			Usage:     schema.SnippetUsage{SuccessCount: 3, FailureCount: 1},
		},
		{
			ID:        "snp_bbbb",
			Type:      schema.ImportStatementSnippet,
			Code:      "import os",
			Language:  "python",
			Frequency: 4,
			Score:     0.35,
			Contexts:  []string{"python:module:a.py"},
		},
	}
}

func testPattern() schema.FunctionPattern {
	return schema.FunctionPattern{
		ID:             "pat_1",
		Name:           "Fetch with timeout",
		Category:       schema.APIIntegrationCategory,
		ComplexityTier: schema.SimpleTier,
		Language:       "python",
		ApprovalStatus: schema.ApprovedStatus,
		Version:        2,
		Steps:          []schema.PatternStep{{ID: "step_1", Description: "Call", CodeFragment: "requests.get(url, timeout=5)"}},
		Score:          0.9,
		Metadata:       schema.PatternMetadata{CreatedBy: "alice", UpdatedBy: "bob", CreatedAt: testTime, UpdatedAt: testTime, UsageCount: 7},
		Transitions: []schema.StatusTransition{
			{Version: 1, To: schema.PendingStatus, Actor: "alice", At: testTime},
			{Version: 2, From: schema.PendingStatus, To: schema.ApprovedStatus, Actor: "bob", At: testTime},
		},
		Tags: []string{"http", "net"},
	}
}

func outputConfig(t *testing.T, mode schema.OutputMode, name string) *contract.Config {
	t.Helper()
	cfg := contract.DefaultConfig()
	cfg.Output = mode
	cfg.OutputFile = filepath.Join(t.TempDir(), name)
	return cfg
}

func readOutput(t *testing.T, cfg *contract.Config) string {
	t.Helper()
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	return string(data)
}

func readCSV(t *testing.T, cfg *contract.Config) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(readOutput(t, cfg))).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteSnippets(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		cfg := outputConfig(t, schema.JSONOut, "snippets.json")
		require.NoError(t, NewOutWriter().WriteSnippets(testSnippets(), cfg))

		var got []schema.CodeSnippet
		require.NoError(t, json.Unmarshal([]byte(readOutput(t, cfg)), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "snp_aaaa", got[0].ID)
		assert.Equal(t, 12, got[0].Frequency)
	})

	t.Run("csv", func(t *testing.T) {
		cfg := outputConfig(t, schema.CSVOut, "snippets.csv")
		require.NoError(t, NewOutWriter().WriteSnippets(testSnippets(), cfg))

		records := readCSV(t, cfg)
		require.Len(t, records, 3)
		assert.Equal(t, "rank", records[0][0])
		assert.Equal(t, []string{"1", "snp_aaaa", "function_call", "python", "12", "0.910", "Strong"}, records[1][:7])
		assert.Equal(t, "python:function:fetch|python:function:load", records[1][7])
		assert.Equal(t, "requests.get(url,\n    timeout=5)", records[1][10])
		assert.Equal(t, "Low", records[2][6])
	})

	t.Run("text", func(t *testing.T) {
		cfg := outputConfig(t, schema.TextOut, "snippets.txt")
		require.NoError(t, NewOutWriter().WriteSnippets(testSnippets(), cfg))

		out := readOutput(t, cfg)
		assert.Contains(t, out, "snp_aaaa")
		assert.Contains(t, out, "requests.get(url, timeout=5)")
		assert.Contains(t, out, "Showing 2 snippets")
	})

	t.Run("parquet", func(t *testing.T) {
		cfg := outputConfig(t, schema.ParquetOut, "snippets.parquet")
		require.NoError(t, NewOutWriter().WriteSnippets(testSnippets(), cfg))

		info, err := os.Stat(cfg.OutputFile)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	})

	t.Run("parquet without file", func(t *testing.T) {
		cfg := contract.DefaultConfig()
		cfg.Output = schema.ParquetOut
		err := WriteSnippets(testSnippets(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--output-file is required")
	})
}

func TestWritePatterns(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		cfg := outputConfig(t, schema.CSVOut, "patterns.csv")
		require.NoError(t, WritePatterns([]schema.FunctionPattern{testPattern()}, cfg))

		records := readCSV(t, cfg)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"pat_1", "Fetch with timeout", "api_integration", "simple", "python", "APPROVED", "2", "1", "0.900", "7", "alice", "", "http|net"}, records[1])
	})

	t.Run("parquet is rejected", func(t *testing.T) {
		cfg := outputConfig(t, schema.ParquetOut, "patterns.parquet")
		err := WritePatterns([]schema.FunctionPattern{testPattern()}, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "only supported for snippets")
	})
}

func TestWritePatternHistory(t *testing.T) {
	current := testPattern()
	prior := testPattern()
	prior.Version = 1
	prior.ApprovalStatus = schema.PendingStatus
	prior.Metadata.UpdatedBy = "alice"
	record := schema.PatternRecord{Current: current, Versions: []schema.FunctionPattern{prior}}

	t.Run("csv lists versions oldest first", func(t *testing.T) {
		cfg := outputConfig(t, schema.CSVOut, "history.csv")
		require.NoError(t, WritePatternHistory(record, cfg))

		records := readCSV(t, cfg)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"1", "Fetch with timeout", "PENDING", "1", "alice", "2026-03-01 12:00:00"}, records[1])
		assert.Equal(t, "2", records[2][0])
		assert.Equal(t, "APPROVED", records[2][2])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writePatternDetail(&buf, record))

		out := buf.String()
		assert.Contains(t, out, "Fetch with timeout (pat_1) v2 [APPROVED]")
		assert.Contains(t, out, "step_1")
		assert.Contains(t, out, "bob")
		assert.Contains(t, out, "1 archived versions")
	})
}

func TestWriteReport(t *testing.T) {
	report := &schema.WorkspaceReport{
		Analysis: &schema.WorkspaceAnalysis{
			Root: "/ws",
			Files: []schema.FileAnalysis{
				{FilePath: "a.py", Language: "python", LineCount: 40, ComplexityScore: 6, IsHotspot: true, Elements: make([]schema.CodeElement, 3)},
				{FilePath: "main.go", Language: "go", LineCount: 10, ComplexityScore: 1},
			},
			Failures: []schema.Failure{{Path: "bad.py", Reason: schema.ParseFailure, Message: "syntax error"}},
			Hotspots: []schema.Hotspot{{ElementID: "e1", Name: "fetch", FilePath: "a.py", ReferenceCount: 7}},
		},
		Mining:          &schema.MiningResult{Root: "/ws", Snippets: testSnippets()},
		PrimaryLanguage: "python",
		Recommendations: []schema.FunctionPattern{testPattern()},
		RunID:           7,
	}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeReportText(&buf, report))

		out := buf.String()
		assert.Contains(t, out, "Files analyzed: 2  Failures: 1  Snippets: 2  Primary language: python")
		assert.Contains(t, out, "Run ID: 7")
		assert.Contains(t, out, "Hotspots")
		assert.Contains(t, out, "fetch")
		assert.Contains(t, out, "Recommended patterns")
		assert.Contains(t, out, "PARSE_FAILURE")
	})

	t.Run("csv", func(t *testing.T) {
		cfg := outputConfig(t, schema.CSVOut, "report.csv")
		require.NoError(t, WriteReport(report, cfg))

		records := readCSV(t, cfg)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"a.py", "python", "3", "40", "6", "true", ""}, records[1])
	})

	t.Run("json", func(t *testing.T) {
		cfg := outputConfig(t, schema.JSONOut, "report.json")
		require.NoError(t, WriteReport(report, cfg))

		var got schema.WorkspaceReport
		require.NoError(t, json.Unmarshal([]byte(readOutput(t, cfg)), &got))
		assert.Equal(t, int64(7), got.RunID)
		assert.Len(t, got.Mining.Snippets, 2)
	})
}

func TestWriteSuggestions(t *testing.T) {
	s := &schema.Suggestions{
		FilePath: "a.py",
		Context:  "python:function:fetch",
		Element:  &schema.CodeElement{Type: schema.FunctionElement, Name: "fetch", StartLine: 3, EndLine: 9},
		Snippets: testSnippets()[:1],
		Patterns: []schema.FunctionPattern{testPattern()},
	}

	t.Run("csv ranks patterns first", func(t *testing.T) {
		cfg := outputConfig(t, schema.CSVOut, "suggest.csv")
		require.NoError(t, WriteSuggestions(s, cfg))

		records := readCSV(t, cfg)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"1", "pattern", "pat_1"}, records[1][:3])
		assert.Equal(t, []string{"2", "snippet", "snp_aaaa"}, records[2][:3])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeSuggestionText(&buf, s))
		assert.Contains(t, buf.String(), "python:function:fetch (function fetch, lines 3-9)")
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeSuggestionText(&buf, &schema.Suggestions{FilePath: "x.go", Context: "go:module:x.go"}))
		assert.Contains(t, buf.String(), "No suggestions found")
	})
}

func TestWriteStats(t *testing.T) {
	stats := schema.EngineStats{
		Analyzer:     schema.AnalyzerStats{FilesAnalyzed: 3, ByLanguage: map[string]int{"python": 2, "go": 1}},
		Miner:        schema.MinerStats{TotalSnippets: 2, ByType: map[schema.SnippetType]int{schema.FunctionCallSnippet: 2}},
		Notebook:     schema.NotebookStats{TotalPatterns: 1, ByStatus: map[schema.ApprovalStatus]int{schema.ApprovedStatus: 1}},
		AutoPromoted: 1,
		GeneratedAt:  testTime,
	}

	rows := statRows(stats)
	assert.Contains(t, rows, []string{"analyzer", "files_analyzed", "3"})
	assert.Contains(t, rows, []string{"miner", "type:function_call", "2"})
	assert.Contains(t, rows, []string{"notebook", "status:APPROVED", "1"})
	assert.Equal(t, []string{"manager", "auto_promoted", "1"}, rows[len(rows)-1])

	goIdx, pyIdx := -1, -1
	for i, r := range rows {
		switch r[1] {
		case "language:go":
			goIdx = i
		case "language:python":
			pyIdx = i
		}
	}
	assert.Less(t, goIdx, pyIdx)

	cfg := outputConfig(t, schema.TextOut, "stats.txt")
	require.NoError(t, WriteStats(stats, cfg))
	assert.Contains(t, readOutput(t, cfg), "Generated at 2026-03-01 12:00:00")
}

func TestOneLine(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		width int
		want  string
	}{
		{name: "collapses whitespace", code: "a(\n\t b )", width: 20, want: "a( b )"},
		{name: "truncates", code: "abcdefghij", width: 6, want: "abc..."},
		{name: "fits", code: "abc", width: 3, want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, oneLine(tt.code, tt.width))
		})
	}
}

func TestMaxCodeWidth(t *testing.T) {
	w := maxCodeWidth(snippetFixedWidth)
	assert.GreaterOrEqual(t, w, 20)
	assert.LessOrEqual(t, w, 80)
}
