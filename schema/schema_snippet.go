package schema

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SnippetID derives the stable id of a snippet from its identity triple.
func SnippetID(language string, t SnippetType, fingerprint string) string {
	sum := sha256.Sum256([]byte(language + "|" + string(t) + "|" + fingerprint))
	return fmt.Sprintf("snp_%x", sum[:8])
}

// ContextFingerprint identifies the code context an element provides.
func ContextFingerprint(language string, t ElementType, name string) string {
	return fmt.Sprintf("%s:%s:%s", language, t, name)
}

// ModuleContext identifies module-level code of a file.
func ModuleContext(language, filePath string) string {
	return fmt.Sprintf("%s:module:%s", language, filePath)
}

// MatchesContext reports whether any snippet context starts with prefix.
// An empty prefix matches everything.
func (s *CodeSnippet) MatchesContext(prefix string) bool {
	if prefix == "" {
		return true
	}
	for _, c := range s.Contexts {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// SnippetExample is one place a snippet was observed.
type SnippetExample struct {
	FilePath string `json:"filePath"`
	Line     int    `json:"line"`
}

// SnippetUsage holds recorded usage outcomes.
type SnippetUsage struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// Total returns the number of recorded usages.
func (u SnippetUsage) Total() int {
	return u.SuccessCount + u.FailureCount
}

// CodeSnippet is a recurring code fragment identified by a normalized fingerprint.
type CodeSnippet struct {
	ID                    string              `json:"id"`
	Type                  SnippetType         `json:"type"`
	NormalizedFingerprint string              `json:"normalizedFingerprint"`
	Code                  string              `json:"code"`
	Language              string              `json:"language"`
	Frequency             int                 `json:"frequency"`
	Score                 float64             `json:"score"`
	Contexts              []string            `json:"contexts"`
	Examples              []SnippetExample    `json:"examples"`
	Usage                 SnippetUsage        `json:"usage"`
	Sources               map[string][]string `json:"sources,omitempty"`        // File path to "line:column" occurrence keys
	SourceContexts        map[string][]string `json:"sourceContexts,omitempty"` // File path to contexts mined from it
	UsageContexts         []string            `json:"usageContexts,omitempty"`  // Contexts reported by recorded usages
	LastUsedAt            time.Time           `json:"lastUsedAt"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

// DistinctContexts returns the number of distinct context fingerprints.
func (s *CodeSnippet) DistinctContexts() int {
	return len(s.Contexts)
}

// Clone returns a deep copy of the snippet.
func (s *CodeSnippet) Clone() CodeSnippet {
	c := *s
	c.Contexts = append([]string(nil), s.Contexts...)
	c.Examples = append([]SnippetExample(nil), s.Examples...)
	c.Sources = cloneLists(s.Sources)
	c.SourceContexts = cloneLists(s.SourceContexts)
	c.UsageContexts = append([]string(nil), s.UsageContexts...)
	return c
}

func cloneLists(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// SortSnippets orders snippets by score desc, then most recent usage, then frequency desc, then id.
func SortSnippets(snippets []CodeSnippet) {
	sort.SliceStable(snippets, func(i, j int) bool {
		a, b := snippets[i], snippets[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.LastUsedAt.Equal(b.LastUsedAt) {
			return a.LastUsedAt.After(b.LastUsedAt)
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.ID < b.ID
	})
}

// SnippetQuery filters and limits GetSnippets.
type SnippetQuery struct {
	Language string
	Context  string // Prefix of a context fingerprint
	Limit    int
}

// MiningResult is the aggregate result of mining a workspace.
type MiningResult struct {
	Root         string        `json:"root"`
	Snippets     []CodeSnippet `json:"snippets"`
	Failures     []Failure     `json:"failures"`
	FilesMined   int           `json:"filesMined"`
	FilesSkipped int           `json:"filesSkipped"`
	Pruned       int           `json:"pruned"`
	Duration     time.Duration `json:"duration"`
}

// MinerStats summarizes the retained snippet table.
type MinerStats struct {
	TotalSnippets  int                 `json:"totalSnippets"`
	ByType         map[SnippetType]int `json:"byType"`
	ByLanguage     map[string]int      `json:"byLanguage"`
	TotalFrequency int                 `json:"totalFrequency"`
	AverageScore   float64             `json:"averageScore"`
	TotalUsages    int                 `json:"totalUsages"`
}

// SnippetExport is the on-disk document for snippet import/export.
type SnippetExport struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exportedAt"`
	Snippets   []CodeSnippet `json:"snippets"`
}
