// Package core orchestrates the analyzer, the miner and the notebook.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/huangsam/codeintel/core/analyzer"
	"github.com/huangsam/codeintel/core/miner"
	"github.com/huangsam/codeintel/core/notebook"
	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

const (
	// snippetsFile holds the miner's snippet table under the storage path.
	snippetsFile = "snippets.json"
	// patternsFile is the pattern export written by ExportData.
	patternsFile = "patterns.json"
	// systemActor authors auto-promoted patterns.
	systemActor = "system"
)

// Deps are the collaborators a Manager is built from. Zero values select defaults.
type Deps struct {
	Fs        afero.Fs              // Workspace file system, read-only to the engine
	StorageFs afero.Fs              // Read/write file system for storage, import and export
	Cache     contract.CacheManager // Optional analysis cache and run history
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Manager is a caller-owned engine instance. It is safe for concurrent use.
type Manager struct {
	cfg       *contract.Config
	storageFs afero.Fs
	history   contract.HistoryStore
	logger    *zap.Logger
	now       func() time.Time

	analyzer *analyzer.Analyzer
	miner    *miner.Miner
	notebook *notebook.Notebook

	promoteMu    sync.Mutex
	autoPromoted atomic.Int64
}

// NewManager builds the analyzer, miner and notebook from cfg and deps.
func NewManager(cfg *contract.Config, deps Deps) *Manager {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.StorageFs == nil {
		deps.StorageFs = afero.NewOsFs()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	logger := contract.LoggerOrNop(deps.Logger)

	analyzerOpts := []analyzer.Option{analyzer.WithLogger(logger.Named("analyzer"))}
	var history contract.HistoryStore
	if deps.Cache != nil {
		if store := deps.Cache.GetAnalysisCache(); store != nil {
			analyzerOpts = append(analyzerOpts, analyzer.WithCache(store))
		}
		history = deps.Cache.GetHistoryStore()
	}

	return &Manager{
		cfg:       cfg,
		storageFs: deps.StorageFs,
		history:   history,
		logger:    logger,
		now:       deps.Clock,
		analyzer:  analyzer.New(cfg.Analyzer, deps.Fs, analyzerOpts...),
		miner: miner.New(cfg.Miner, deps.Fs,
			miner.WithLogger(logger.Named("miner")),
			miner.WithExportFs(deps.StorageFs),
			miner.WithClock(deps.Clock),
		),
		notebook: notebook.New(cfg.Notebook, deps.StorageFs,
			notebook.WithLogger(logger.Named("notebook")),
			notebook.WithExportFs(deps.StorageFs),
			notebook.WithClock(deps.Clock),
		),
	}
}

// Analyzer returns the underlying analyzer.
func (m *Manager) Analyzer() *analyzer.Analyzer { return m.analyzer }

// Miner returns the underlying miner.
func (m *Manager) Miner() *miner.Miner { return m.miner }

// Notebook returns the underlying notebook.
func (m *Manager) Notebook() *notebook.Notebook { return m.notebook }

// Initialize loads persisted patterns and snippets and starts autosave.
// Corrupt storage is logged and the affected component starts empty.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.notebook.Initialize(ctx); err != nil {
		if !errors.Is(err, schema.ErrCorruptStorage) {
			return err
		}
		m.logger.Warn("pattern storage was corrupt and has been quarantined", zap.Error(err))
	}

	path := m.snippetsPath()
	exists, err := afero.Exists(m.storageFs, path)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if exists {
		if err := m.miner.ImportSnippets(path); err != nil {
			if !errors.Is(err, schema.ErrCorruptStorage) {
				return err
			}
			m.logger.Warn("snippet storage is corrupt, starting empty", zap.Error(err))
		}
	}

	m.notebook.Start(ctx)
	return nil
}

// AnalyzeWorkspace analyzes and mines root, then recommends approved patterns
// for the workspace's primary language. On cancellation the partial report is
// returned together with ctx.Err().
func (m *Manager) AnalyzeWorkspace(ctx context.Context, root string) (*schema.WorkspaceReport, error) {
	start := m.now()
	runID := m.beginRun(root, start)

	analysis, err := m.analyzer.AnalyzeWorkspace(ctx, root)
	if err != nil && (analysis == nil || ctx.Err() == nil) {
		m.abortRun(runID, analysis)
		return nil, err
	}
	mining := &schema.MiningResult{Root: root, Snippets: []schema.CodeSnippet{}, Failures: []schema.Failure{}}
	if err == nil {
		mined, mineErr := m.miner.MineWorkspace(ctx, root)
		if mineErr != nil && (mined == nil || ctx.Err() == nil) {
			m.abortRun(runID, analysis)
			return nil, mineErr
		}
		mining, err = mined, mineErr
	}

	primary := analysis.PrimaryLanguage()
	report := &schema.WorkspaceReport{
		Analysis:        analysis,
		Mining:          mining,
		PrimaryLanguage: primary,
		Recommendations: m.notebook.SearchPatterns("", schema.PatternFilters{Language: primary, ApprovalStatus: schema.ApprovedStatus}),
		RunID:           runID,
	}
	m.endRun(runID, report)
	if err != nil {
		// Cancelled: the partial result is consistent for what was scanned
		m.logger.Warn("workspace analysis interrupted",
			zap.String("root", root),
			zap.Int("files", len(analysis.Files)),
			zap.Error(err))
		return report, err
	}
	m.logger.Info("workspace analyzed",
		zap.String("root", root),
		zap.String("language", primary),
		zap.Int("files", len(analysis.Files)),
		zap.Int("snippets", len(mining.Snippets)),
		zap.Duration("duration", m.now().Sub(start)))
	return report, nil
}

// GetContextSuggestions returns snippets and approved patterns relevant to the
// element enclosing cursor in filePath. A nil cursor asks for file-level suggestions.
func (m *Manager) GetContextSuggestions(ctx context.Context, filePath string, cursor *int, limit int) (*schema.Suggestions, error) {
	if limit <= 0 {
		limit = contract.DefaultResultLimit
	}
	fa, err := m.analyzer.AnalyzeFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	out := &schema.Suggestions{FilePath: fa.FilePath, Context: fa.Language}
	if cursor != nil {
		if el := enclosingElement(fa.Elements, *cursor); el != nil {
			out.Element = el
			out.Context = schema.ContextFingerprint(fa.Language, el.Type, el.Name)
		}
	}

	out.Snippets = m.miner.GetSnippets(schema.SnippetQuery{Language: fa.Language, Context: out.Context, Limit: limit})
	if len(out.Snippets) == 0 && out.Context != fa.Language {
		out.Snippets = m.miner.GetSnippets(schema.SnippetQuery{Language: fa.Language, Limit: limit})
	}

	matched := make(map[string]bool, len(out.Snippets))
	for _, s := range out.Snippets {
		matched[s.ID] = true
	}
	patterns := m.notebook.SearchPatterns("", schema.PatternFilters{Language: fa.Language, ApprovalStatus: schema.ApprovedStatus})
	sort.SliceStable(patterns, func(i, j int) bool {
		return matched[patterns[i].SourceSnippetID] && !matched[patterns[j].SourceSnippetID]
	})
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	out.Patterns = patterns
	return out, nil
}

// PromoteSnippetToPattern turns a snippet into a pattern authored by createdBy.
func (m *Manager) PromoteSnippetToPattern(snippetID, createdBy string, overrides schema.PatternOverrides) (schema.FunctionPattern, error) {
	snippet, err := m.miner.GetSnippet(snippetID)
	if err != nil {
		return schema.FunctionPattern{}, err
	}
	overrides.CreatedBy = createdBy
	return m.notebook.GeneratePatternFromSnippet(snippet, overrides)
}

// RecordSnippetUsage records a usage of a snippet and auto-promotes it once
// it qualifies and no pattern is linked to it yet.
func (m *Manager) RecordSnippetUsage(snippetID string, success bool, usageContext string) (*schema.UsageResult, error) {
	snippet, err := m.miner.RecordUsage(snippetID, success, usageContext)
	if err != nil {
		return nil, err
	}
	result := &schema.UsageResult{Snippet: snippet}
	if !m.qualifies(snippet) {
		return result, nil
	}

	m.promoteMu.Lock()
	defer m.promoteMu.Unlock()
	if _, linked := m.notebook.FindBySnippet(snippetID); linked {
		return result, nil
	}
	p, err := m.notebook.GeneratePatternFromSnippet(snippet, schema.PatternOverrides{CreatedBy: systemActor})
	if err != nil {
		m.logger.Warn("auto-promotion failed", zap.String("snippet", snippetID), zap.Error(err))
		return result, nil
	}
	m.autoPromoted.Add(1)
	m.logger.Info("snippet auto-promoted", zap.String("snippet", snippetID), zap.String("pattern", p.ID))
	result.AutoPromoted = &p
	return result, nil
}

// qualifies is the auto-promotion predicate.
func (m *Manager) qualifies(s schema.CodeSnippet) bool {
	rule := m.cfg.Manager.AutoPromote
	return rule.Enabled &&
		s.Frequency >= rule.MinFrequency &&
		s.Score >= rule.MinScore &&
		s.DistinctContexts() >= rule.MinContexts
}

// GetStatistics aggregates statistics from every component.
func (m *Manager) GetStatistics() schema.EngineStats {
	return schema.EngineStats{
		Analyzer:     m.analyzer.GetStatistics(),
		Miner:        m.miner.Stats(),
		Notebook:     m.notebook.Stats(),
		AutoPromoted: int(m.autoPromoted.Load()),
		GeneratedAt:  m.now(),
	}
}

// ExportData writes snippets.json and patterns.json inside dir.
func (m *Manager) ExportData(dir string) error {
	if err := m.storageFs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}
	if err := m.miner.ExportSnippets(filepath.Join(dir, snippetsFile)); err != nil {
		return fmt.Errorf("failed to export snippets: %w", err)
	}
	if err := m.notebook.ExportPatterns(filepath.Join(dir, patternsFile)); err != nil {
		return fmt.Errorf("failed to export patterns: %w", err)
	}
	return nil
}

// ImportData reads snippets.json and patterns.json from dir. Either file may be absent.
func (m *Manager) ImportData(dir string) error {
	imported := 0
	for _, step := range []struct {
		name string
		load func(string) error
	}{
		{snippetsFile, m.miner.ImportSnippets},
		{patternsFile, m.notebook.ImportPatterns},
	} {
		path := filepath.Join(dir, step.name)
		if _, err := m.storageFs.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := step.load(path); err != nil {
			return err
		}
		imported++
	}
	if imported == 0 {
		return schema.Errorf(schema.NotFound, "no %s or %s in %s", snippetsFile, patternsFile, dir)
	}
	return nil
}

// Save persists patterns and snippets to the storage path.
func (m *Manager) Save() error {
	return errors.Join(m.notebook.Save(), m.miner.ExportSnippets(m.snippetsPath()))
}

// Close stops autosave and flushes patterns and snippets.
func (m *Manager) Close() error {
	return errors.Join(m.notebook.Close(), m.miner.ExportSnippets(m.snippetsPath()))
}

func (m *Manager) snippetsPath() string {
	return filepath.Join(m.cfg.Manager.StoragePath, snippetsFile)
}

// beginRun opens a history run, returning 0 when history is disabled or fails.
func (m *Manager) beginRun(root string, start time.Time) int64 {
	if m.history == nil {
		return 0
	}
	params := map[string]any{
		"root":                root,
		"languages":           m.cfg.Analyzer.Languages,
		"workers":             m.cfg.Analyzer.Workers,
		"hotspot_threshold":   m.cfg.Analyzer.HotspotThreshold,
		"duplicate_threshold": m.cfg.Analyzer.DuplicateThreshold,
		"min_frequency":       m.cfg.Miner.MinFrequency,
	}
	runID, err := m.history.BeginRun(root, start, params)
	if err != nil {
		m.logger.Warn("run tracking initialization failed", zap.Error(err))
		return 0
	}
	return runID
}

// endRun records per-file metrics and closes the run.
func (m *Manager) endRun(runID int64, report *schema.WorkspaceReport) {
	if m.history == nil || runID <= 0 {
		return
	}
	for _, fa := range report.Analysis.Files {
		metrics := schema.FileRunMetrics{
			AnalysisTime:    fa.AnalyzedAt,
			Language:        fa.Language,
			ComplexityScore: fa.ComplexityScore,
			ElementCount:    len(fa.Elements),
			LineCount:       fa.LineCount,
			IsHotspot:       fa.IsHotspot,
			DuplicateGroup:  fa.DuplicateGroupID,
		}
		if err := m.history.RecordFileMetrics(runID, fa.FilePath, metrics); err != nil {
			m.logger.Warn("run tracking failed", zap.String("path", fa.FilePath), zap.Error(err))
		}
	}
	totals := contract.RunTotals{
		Files:           len(report.Analysis.Files),
		Failures:        len(report.Analysis.Failures) + len(report.Mining.Failures),
		Snippets:        len(report.Mining.Snippets),
		PrimaryLanguage: report.PrimaryLanguage,
	}
	if err := m.history.EndRun(runID, m.now(), totals); err != nil {
		m.logger.Warn("failed to finalize run tracking", zap.Error(err))
	}
}

// abortRun closes a run whose scan did not complete, keeping what was analyzed.
func (m *Manager) abortRun(runID int64, analysis *schema.WorkspaceAnalysis) {
	if analysis == nil {
		analysis = &schema.WorkspaceAnalysis{}
	}
	m.endRun(runID, &schema.WorkspaceReport{Analysis: analysis, Mining: &schema.MiningResult{}})
}

// enclosingElement returns the smallest element whose line range contains
// line, preferring the closest start line on ties. Imports never enclose.
func enclosingElement(elements []schema.CodeElement, line int) *schema.CodeElement {
	var best *schema.CodeElement
	for i := range elements {
		el := &elements[i]
		if el.Type == schema.ImportElement || line < el.StartLine || line > el.EndLine {
			continue
		}
		if best == nil {
			best = el
			continue
		}
		span, bestSpan := el.EndLine-el.StartLine, best.EndLine-best.StartLine
		if span < bestSpan || (span == bestSpan && line-el.StartLine < line-best.StartLine) {
			best = el
		}
	}
	if best == nil {
		return nil
	}
	el := *best
	return &el
}
