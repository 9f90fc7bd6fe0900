package schema_test

import (
	"testing"

	"github.com/huangsam/codeintel/schema"
	"github.com/stretchr/testify/assert"
)

func TestGetPlainLabel(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected string
	}{
		{"strong at one", 1.0, "Strong"},
		{"strong at promotion score", 0.8, "Strong"},
		{"solid below promotion score", 0.79, "Solid"},
		{"solid lower bound", 0.6, "Solid"},
		{"emerging", 0.59, "Emerging"},
		{"emerging lower bound", 0.4, "Emerging"},
		{"weak", 0.39, "Weak"},
		{"weak at zero", 0.0, "Weak"},
		{"negative", -1.0, "Weak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, schema.GetPlainLabel(tt.score))
		})
	}
}

func TestCategoryForSnippet(t *testing.T) {
	for _, st := range schema.AllSnippetTypes {
		t.Run(string(st), func(t *testing.T) {
			_, ok := schema.ValidPatternCategories[schema.CategoryForSnippet(st)]
			assert.True(t, ok)
		})
	}
	assert.Equal(t, schema.ErrorHandlingCategory, schema.CategoryForSnippet(schema.ErrorHandlingSnippet))
	assert.Equal(t, schema.UtilityCategory, schema.CategoryForSnippet(schema.SnippetType("unknown")))
}
