package schema

import "time"

// WorkspaceReport is the combined result of analyzing and mining a workspace.
type WorkspaceReport struct {
	Analysis        *WorkspaceAnalysis `json:"analysis"`
	Mining          *MiningResult      `json:"mining"`
	PrimaryLanguage string             `json:"primaryLanguage"`
	Recommendations []FunctionPattern  `json:"recommendations"`
	RunID           int64              `json:"runId,omitempty"`
}

// Suggestions is the context-aware answer for a cursor location.
type Suggestions struct {
	FilePath string            `json:"filePath"`
	Context  string            `json:"context"`
	Element  *CodeElement      `json:"element,omitempty"`
	Snippets []CodeSnippet     `json:"snippets"`
	Patterns []FunctionPattern `json:"patterns"`
}

// UsageResult reports the outcome of recording a snippet usage.
type UsageResult struct {
	Snippet      CodeSnippet      `json:"snippet"`
	AutoPromoted *FunctionPattern `json:"autoPromoted,omitempty"`
}

// EngineStats aggregates statistics from every component.
type EngineStats struct {
	Analyzer     AnalyzerStats `json:"analyzer"`
	Miner        MinerStats    `json:"miner"`
	Notebook     NotebookStats `json:"notebook"`
	AutoPromoted int           `json:"autoPromoted"`
	GeneratedAt  time.Time     `json:"generatedAt"`
}

// GetPlainLabel returns a plain text label for a snippet or pattern score in [0,1].
// Strong matches the default auto-promotion score.
func GetPlainLabel(score float64) string {
	switch {
	case score >= 0.8:
		return "Strong"
	case score >= 0.6:
		return "Solid"
	case score >= 0.4:
		return "Emerging"
	default:
		return "Weak"
	}
}
