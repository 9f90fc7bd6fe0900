package schema_test

import (
	"testing"
	"time"

	"github.com/huangsam/codeintel/schema"
	"github.com/stretchr/testify/assert"
)

func TestPrimaryLanguage(t *testing.T) {
	tests := []struct {
		name     string
		langs    []string
		expected string
	}{
		{"Empty", nil, ""},
		{"Majority", []string{"go", "python", "go"}, "go"},
		{"Tie Broken By Name", []string{"python", "go"}, "go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &schema.WorkspaceAnalysis{}
			for _, l := range tt.langs {
				w.Files = append(w.Files, schema.FileAnalysis{Language: l})
			}
			assert.Equal(t, tt.expected, w.PrimaryLanguage())
		})
	}
}

func TestSortSnippets(t *testing.T) {
	now := time.Now()
	snippets := []schema.CodeSnippet{
		{ID: "c", Score: 0.5},
		{ID: "b", Score: 0.9, LastUsedAt: now.Add(-time.Hour)},
		{ID: "a", Score: 0.9, LastUsedAt: now},
		{ID: "d", Score: 0.5, Frequency: 3},
	}

	schema.SortSnippets(snippets)

	ids := make([]string, len(snippets))
	for i, s := range snippets {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids)
}

func TestSortPatterns(t *testing.T) {
	patterns := []schema.FunctionPattern{
		{ID: "1", Name: "zeta", Score: 0.5},
		{ID: "2", Name: "alpha", Score: 0.5},
		{ID: "3", Name: "beta", Score: 0.5, Metadata: schema.PatternMetadata{UsageCount: 4}},
		{ID: "4", Name: "omega", Score: 0.7},
	}

	schema.SortPatterns(patterns)

	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"omega", "beta", "alpha", "zeta"}, names)
}

func TestCodeElementContains(t *testing.T) {
	e := schema.CodeElement{StartLine: 3, EndLine: 7}
	assert.True(t, e.Contains(3))
	assert.True(t, e.Contains(7))
	assert.False(t, e.Contains(8))
	assert.Equal(t, 5, e.Span())
}

func TestSnippetCloneIsDeep(t *testing.T) {
	s := schema.CodeSnippet{Contexts: []string{"go"}, Sources: map[string][]string{"a.go": {"1:1"}}}
	c := s.Clone()
	c.Contexts[0] = "python"
	c.Sources["a.go"][0] = "9:9"
	assert.Equal(t, "go", s.Contexts[0])
	assert.Equal(t, "1:1", s.Sources["a.go"][0])
}

func TestSnippetID(t *testing.T) {
	id := schema.SnippetID("go", schema.FunctionCallSnippet, "foo()")
	assert.Equal(t, id, schema.SnippetID("go", schema.FunctionCallSnippet, "foo()"))
	assert.Regexp(t, `^snp_[0-9a-f]{16}$`, id)
	assert.NotEqual(t, id, schema.SnippetID("python", schema.FunctionCallSnippet, "foo()"))
	assert.NotEqual(t, id, schema.SnippetID("go", schema.APIUsageSnippet, "foo()"))
}

func TestContextFingerprints(t *testing.T) {
	assert.Equal(t, "python:function:alpha", schema.ContextFingerprint("python", schema.FunctionElement, "alpha"))
	assert.Equal(t, "go:module:cmd/main.go", schema.ModuleContext("go", "cmd/main.go"))
}

func TestMatchesContext(t *testing.T) {
	s := &schema.CodeSnippet{Contexts: []string{"python:function:alpha", "python:module:a.py"}}
	tests := []struct {
		prefix   string
		expected bool
	}{
		{"", true},
		{"python:function", true},
		{"python:module:a.py", true},
		{"python:class", false},
		{"go:", false},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.MatchesContext(tt.prefix))
		})
	}
}
