package schema

import (
	"sort"
	"time"
)

// PatternStep is one step of a multi-step pattern.
type PatternStep struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	CodeFragment string `json:"codeFragment"`
	Language     string `json:"language"`
}

// PatternMetadata tracks authorship and usage of a pattern.
type PatternMetadata struct {
	CreatedBy  string    `json:"createdBy"`
	UpdatedBy  string    `json:"updatedBy"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	UsageCount int       `json:"usageCount"`
}

// StatusTransition records an approval state change on a given version.
type StatusTransition struct {
	Version int            `json:"version"`
	From    ApprovalStatus `json:"from"`
	To      ApprovalStatus `json:"to"`
	Actor   string         `json:"actor"`
	At      time.Time      `json:"at"`
}

// FunctionPattern is a curated, versioned and reviewable recipe.
type FunctionPattern struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Category        PatternCategory    `json:"category"`
	ComplexityTier  ComplexityTier     `json:"complexityTier"`
	Steps           []PatternStep      `json:"steps"`
	Description     string             `json:"description"`
	Language        string             `json:"language"`
	ApprovalStatus  ApprovalStatus     `json:"approvalStatus"`
	Version         int                `json:"version"`
	Metadata        PatternMetadata    `json:"metadata"`
	SourceSnippetID string             `json:"sourceSnippetId,omitempty"`
	Score           float64            `json:"score"`
	Tags            []string           `json:"tags,omitempty"`
	Transitions     []StatusTransition `json:"transitions,omitempty"`
}

// Clone returns a deep copy of the pattern.
func (p *FunctionPattern) Clone() FunctionPattern {
	c := *p
	c.Steps = append([]PatternStep(nil), p.Steps...)
	c.Tags = append([]string(nil), p.Tags...)
	c.Transitions = append([]StatusTransition(nil), p.Transitions...)
	return c
}

// PatternOverrides customizes a pattern generated from a snippet.
// Zero values keep the generated defaults.
type PatternOverrides struct {
	Name           string
	Description    string
	Category       PatternCategory
	ComplexityTier ComplexityTier
	Steps          []PatternStep
	ApprovalStatus ApprovalStatus
	CreatedBy      string
	Tags           []string
}

// PatternUpdate revises a pattern's content. Nil fields are left unchanged.
type PatternUpdate struct {
	Name        *string
	Description *string
	Category    *PatternCategory
	Steps       []PatternStep
	Tags        []string
}

// PatternFilters narrows SearchPatterns.
type PatternFilters struct {
	Language       string
	Category       PatternCategory
	ApprovalStatus ApprovalStatus
}

// SortPatterns orders patterns by score desc, usage desc, name asc, then id.
func SortPatterns(patterns []FunctionPattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.UsageCount != b.Metadata.UsageCount {
			return a.Metadata.UsageCount > b.Metadata.UsageCount
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// PatternRecord is a pattern together with its archived versions.
type PatternRecord struct {
	Current  FunctionPattern   `json:"current"`
	Versions []FunctionPattern `json:"versions,omitempty"` // Prior versions, oldest first
}

// PatternExport is the on-disk document for pattern import/export and the notebook index.
type PatternExport struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Patterns   []PatternRecord `json:"patterns"`
}

// NotebookStats summarizes the pattern store.
type NotebookStats struct {
	TotalPatterns int                     `json:"totalPatterns"`
	ByStatus      map[ApprovalStatus]int  `json:"byStatus"`
	ByCategory    map[PatternCategory]int `json:"byCategory"`
	ByLanguage    map[string]int          `json:"byLanguage"`
	TotalVersions int                     `json:"totalVersions"`
	TotalUsage    int                     `json:"totalUsage"`
	LastSavedAt   time.Time               `json:"lastSavedAt"`
}
