// Package schema has models, enums and error codes for all parts of codeintel.
package schema

import "time"

// CodeElement is a structural element extracted from a parsed file.
type CodeElement struct {
	ID               string      `json:"id"`
	Type             ElementType `json:"type"`
	Name             string      `json:"name"`
	FilePath         string      `json:"filePath"`
	StartLine        int         `json:"startLine"`
	EndLine          int         `json:"endLine"`
	Language         string      `json:"language"`
	Complexity       int         `json:"complexity,omitempty"`
	ReferenceCount   int         `json:"referenceCount,omitempty"`
	IsHotspot        bool        `json:"isHotspot,omitempty"`
	DuplicateGroupID string      `json:"duplicateGroupId,omitempty"`
	Normalized       string      `json:"normalized,omitempty"` // Space-joined normalized body tokens
}

// Contains reports whether line falls inside the element's line range.
func (e CodeElement) Contains(line int) bool {
	return line >= e.StartLine && line <= e.EndLine
}

// Span returns the number of lines the element covers.
func (e CodeElement) Span() int {
	return e.EndLine - e.StartLine + 1
}

// DependencyEdge is a directed relation between two element or module identifiers.
type DependencyEdge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
	Line int      `json:"line"`
}

// Reference is a call site found in a file.
type Reference struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// FileAnalysis is the structural analysis of a single file.
type FileAnalysis struct {
	FilePath         string           `json:"filePath"`
	Language         string           `json:"language"`
	Elements         []CodeElement    `json:"elements"`
	DependencyEdges  []DependencyEdge `json:"dependencyEdges"`
	References       []Reference      `json:"references,omitempty"`
	ComplexityScore  int              `json:"complexityScore"`
	LineCount        int              `json:"lineCount"`
	IsHotspot        bool             `json:"isHotspot"`
	DuplicateGroupID string           `json:"duplicateGroupId,omitempty"`
	ModTime          time.Time        `json:"modTime"`
	AnalyzedAt       time.Time        `json:"analyzedAt"`
}

// ModuleID returns the graph identifier of the file itself.
func (f *FileAnalysis) ModuleID() string {
	return "module:" + f.FilePath
}

// DuplicateGroup is a set of elements with near-identical bodies.
type DuplicateGroup struct {
	ID         string   `json:"id"`
	ElementIDs []string `json:"elementIds"`
	Similarity float64  `json:"similarity"` // Lowest pairwise similarity inside the group
}

// Hotspot is an element whose reference or duplication count reached the threshold.
type Hotspot struct {
	ElementID      string `json:"elementId"`
	Name           string `json:"name"`
	FilePath       string `json:"filePath"`
	ReferenceCount int    `json:"referenceCount"`
	DuplicateCount int    `json:"duplicateCount"`
}

// WorkspaceAnalysis is the aggregate result of analyzing a workspace.
type WorkspaceAnalysis struct {
	Root            string           `json:"root"`
	Files           []FileAnalysis   `json:"files"`
	Failures        []Failure        `json:"failures"`
	Graph           *DependencyGraph `json:"graph"`
	Hotspots        []Hotspot        `json:"hotspots"`
	DuplicateGroups []DuplicateGroup `json:"duplicateGroups"`
	Duration        time.Duration    `json:"duration"`
}

// PrimaryLanguage returns the majority language across analyzed files.
// Ties are broken by language name so the result is stable.
func (w *WorkspaceAnalysis) PrimaryLanguage() string {
	counts := make(map[string]int)
	for _, f := range w.Files {
		counts[f.Language]++
	}
	best, bestCount := "", 0
	for lang, n := range counts {
		if n > bestCount || (n == bestCount && lang < best) {
			best, bestCount = lang, n
		}
	}
	return best
}

// AnalyzerStats summarizes what the analyzer has seen so far.
type AnalyzerStats struct {
	FilesAnalyzed     int                 `json:"filesAnalyzed"`
	ByLanguage        map[string]int      `json:"byLanguage"`
	ByElementType     map[ElementType]int `json:"byElementType"`
	HotspotCount      int                 `json:"hotspotCount"`
	DuplicateGroups   int                 `json:"duplicateGroups"`
	AverageComplexity float64             `json:"averageComplexity"`
	CacheHits         int64               `json:"cacheHits"`
	CacheMisses       int64               `json:"cacheMisses"`
}
