// Package outwriter renders engine results as tables, JSON, CSV or Parquet.
package outwriter

import (
	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// OutWriter provides a unified interface for all output operations.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteReport prints a workspace report using the configured output format.
func (ow *OutWriter) WriteReport(report *schema.WorkspaceReport, cfg *contract.Config) error {
	return WriteReport(report, cfg)
}

// WriteSuggestions prints context suggestions using the configured output format.
func (ow *OutWriter) WriteSuggestions(s *schema.Suggestions, cfg *contract.Config) error {
	return WriteSuggestions(s, cfg)
}

// WriteSnippets prints snippets using the configured output format.
func (ow *OutWriter) WriteSnippets(snippets []schema.CodeSnippet, cfg *contract.Config) error {
	return WriteSnippets(snippets, cfg)
}

// WritePatterns prints patterns using the configured output format.
func (ow *OutWriter) WritePatterns(patterns []schema.FunctionPattern, cfg *contract.Config) error {
	return WritePatterns(patterns, cfg)
}

// WritePatternHistory prints one pattern with its archived versions.
func (ow *OutWriter) WritePatternHistory(record schema.PatternRecord, cfg *contract.Config) error {
	return WritePatternHistory(record, cfg)
}

// WriteStats prints engine statistics using the configured output format.
func (ow *OutWriter) WriteStats(stats schema.EngineStats, cfg *contract.Config) error {
	return WriteStats(stats, cfg)
}
