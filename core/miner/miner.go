// Package miner extracts recurring code fragments, scores them and tracks their usage.
package miner

import (
	"encoding/json"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// exportVersion is the version of the snippet export document.
const exportVersion = 1

// Miner owns the snippet table. It is safe for concurrent use.
type Miner struct {
	cfg      contract.MinerConfig
	fs       afero.Fs
	exportFs afero.Fs
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	snippets map[string]*schema.CodeSnippet
	byFile   map[string]map[string]struct{} // File path to ids of snippets it contributes to
}

// Option configures a Miner.
type Option func(*Miner)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Miner) { m.logger = contract.LoggerOrNop(logger) }
}

// WithExportFs sets the file system used by ExportSnippets and ImportSnippets.
func WithExportFs(fs afero.Fs) Option {
	return func(m *Miner) { m.exportFs = fs }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Miner) { m.now = now }
}

// New creates a Miner reading workspaces from fs, which is wrapped read-only.
func New(cfg contract.MinerConfig, fs afero.Fs, opts ...Option) *Miner {
	m := &Miner{
		cfg:      cfg,
		fs:       afero.NewReadOnlyFs(fs),
		exportFs: afero.NewOsFs(),
		logger:   zap.NewNop(),
		now:      time.Now,
		snippets: make(map[string]*schema.CodeSnippet),
		byFile:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxConcurrentFiles <= 0 {
		m.cfg.MaxConcurrentFiles = contract.DefaultMaxConcurrentFiles
	}
	if m.cfg.ContextWindow <= 0 {
		m.cfg.ContextWindow = contract.DefaultContextWindow
	}
	if m.cfg.ParseTimeout <= 0 {
		m.cfg.ParseTimeout = contract.DefaultParseTimeout
	}
	return m
}

// GetSnippets returns matching snippets ordered by score, then most recent usage.
func (m *Miner) GetSnippets(q schema.SnippetQuery) []schema.CodeSnippet {
	m.mu.RLock()
	result := make([]schema.CodeSnippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		if q.Language != "" && s.Language != q.Language {
			continue
		}
		if !s.MatchesContext(q.Context) {
			continue
		}
		result = append(result, s.Clone())
	}
	m.mu.RUnlock()

	schema.SortSnippets(result)
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}

// GetSnippet returns a copy of the snippet with the given id.
func (m *Miner) GetSnippet(id string) (schema.CodeSnippet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snippets[id]
	if !ok {
		return schema.CodeSnippet{}, schema.Errorf(schema.NotFound, "snippet %s not found", id)
	}
	return s.Clone(), nil
}

// RecordUsage updates the usage counters of a snippet, appends the usage
// context and recomputes that snippet's score.
func (m *Miner) RecordUsage(id string, success bool, context string) (schema.CodeSnippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return schema.CodeSnippet{}, schema.Errorf(schema.NotFound, "snippet %s not found", id)
	}
	if success {
		s.Usage.SuccessCount++
	} else {
		s.Usage.FailureCount++
	}
	if context != "" && !slices.Contains(s.UsageContexts, context) && len(s.UsageContexts) < m.cfg.ContextWindow {
		s.UsageContexts = append(s.UsageContexts, context)
	}
	m.addContext(s, context)
	now := m.now()
	s.LastUsedAt = now
	s.UpdatedAt = now
	s.Score = computeScore(s, m.cfg)
	return s.Clone(), nil
}

// addContext appends a distinct context while below the context window.
func (m *Miner) addContext(s *schema.CodeSnippet, context string) {
	if context == "" || slices.Contains(s.Contexts, context) || len(s.Contexts) >= m.cfg.ContextWindow {
		return
	}
	s.Contexts = append(s.Contexts, context)
}

// Stats summarizes the snippet table.
func (m *Miner) Stats() schema.MinerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := schema.MinerStats{
		TotalSnippets: len(m.snippets),
		ByType:        make(map[schema.SnippetType]int),
		ByLanguage:    make(map[string]int),
	}
	var scoreSum float64
	for _, s := range m.snippets {
		stats.ByType[s.Type]++
		stats.ByLanguage[s.Language]++
		stats.TotalFrequency += s.Frequency
		stats.TotalUsages += s.Usage.Total()
		scoreSum += s.Score
	}
	if len(m.snippets) > 0 {
		stats.AverageScore = scoreSum / float64(len(m.snippets))
	}
	return stats
}

// ExportSnippets writes every retained snippet to path as JSON.
func (m *Miner) ExportSnippets(path string) error {
	m.mu.RLock()
	doc := schema.SnippetExport{Version: exportVersion, ExportedAt: m.now(), Snippets: make([]schema.CodeSnippet, 0, len(m.snippets))}
	for _, s := range m.snippets {
		doc.Snippets = append(doc.Snippets, s.Clone())
	}
	m.mu.RUnlock()
	schema.SortSnippets(doc.Snippets)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return contract.WriteFileAtomic(m.exportFs, path, data)
}

// ImportSnippets replaces the snippet table with the contents of path.
func (m *Miner) ImportSnippets(path string) error {
	data, err := afero.ReadFile(m.exportFs, path)
	if err != nil {
		return schema.NewError(schema.NotFound, "cannot read snippet export "+filepath.Base(path), err)
	}
	var doc schema.SnippetExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return schema.NewError(schema.CorruptStorage, "cannot decode snippet export "+filepath.Base(path), err)
	}

	snippets := make(map[string]*schema.CodeSnippet, len(doc.Snippets))
	byFile := make(map[string]map[string]struct{})
	for i := range doc.Snippets {
		s := doc.Snippets[i]
		if _, ok := schema.ValidSnippetTypes[s.Type]; !ok || s.ID == "" {
			return schema.Errorf(schema.CorruptStorage, "invalid snippet %q of type %q", s.ID, s.Type)
		}
		if s.Frequency < 0 || s.Score < 0 || s.Score > 1 {
			return schema.Errorf(schema.CorruptStorage, "snippet %s has out-of-range frequency or score", s.ID)
		}
		snippets[s.ID] = &s
		for file := range s.Sources {
			if byFile[file] == nil {
				byFile[file] = make(map[string]struct{})
			}
			byFile[file][s.ID] = struct{}{}
		}
	}

	m.mu.Lock()
	m.snippets = snippets
	m.byFile = byFile
	m.mu.Unlock()
	m.logger.Info("snippets imported", zap.Int("count", len(snippets)))
	return nil
}
