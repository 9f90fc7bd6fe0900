// Package analyzer parses source files into structural elements and builds
// the workspace dependency graph with complexity, hotspot and duplicate signals.
package analyzer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/internal/lang"
	"github.com/huangsam/codeintel/schema"
)

// Analyzer performs structural analysis of files and workspaces.
// It is safe for concurrent use.
type Analyzer struct {
	cfg    contract.AnalyzerConfig
	fs     afero.Fs
	cache  contract.CacheStore
	logger *zap.Logger

	mu          sync.RWMutex
	summaries   map[string]fileSummary // Keyed by the FileAnalysis path
	invalidated map[string]bool
	graph       *schema.DependencyGraph
	hotspots    int
	duplicates  int

	hits   atomic.Int64
	misses atomic.Int64
}

// fileSummary is what GetStatistics needs from a FileAnalysis.
type fileSummary struct {
	language   string
	complexity int
	elements   map[schema.ElementType]int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache enables the FileAnalysis cache.
func WithCache(store contract.CacheStore) Option {
	return func(a *Analyzer) { a.cache = store }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = contract.LoggerOrNop(logger) }
}

// New creates an Analyzer reading from fs, which is wrapped read-only.
func New(cfg contract.AnalyzerConfig, fs afero.Fs, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:         cfg,
		fs:          afero.NewReadOnlyFs(fs),
		logger:      zap.NewNop(),
		summaries:   make(map[string]fileSummary),
		invalidated: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.Workers <= 0 {
		a.cfg.Workers = contract.DefaultWorkers
	}
	if a.cfg.ParseTimeout <= 0 {
		a.cfg.ParseTimeout = contract.DefaultParseTimeout
	}
	return a
}

// AnalyzeFile analyzes a single file. The returned FileAnalysis carries reference
// counts for calls resolved inside the file only.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*schema.FileAnalysis, error) {
	return a.analyzePath(ctx, path, path)
}

// analyzePath analyzes the file at path, reporting it under display.
func (a *Analyzer) analyzePath(ctx context.Context, path, display string) (*schema.FileAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := lang.Allowed(path, a.cfg.Languages)
	if l == nil {
		return nil, schema.Errorf(schema.UnsupportedLanguage, "no allow-listed language for %s", display)
	}

	info, err := a.fs.Stat(path)
	if err != nil {
		return nil, schema.NewError(schema.Unreadable, "cannot stat "+display, err)
	}
	if a.cfg.MaxFileSize > 0 && info.Size() > a.cfg.MaxFileSize {
		return nil, schema.Errorf(schema.FileTooLarge, "%s is %d bytes, limit is %d", display, info.Size(), a.cfg.MaxFileSize)
	}

	key := generateCacheKey(path, display, info.ModTime())
	if a.takeInvalidated(path) {
		a.misses.Add(1)
	} else if fa := a.checkCacheHit(key); fa != nil {
		a.hits.Add(1)
		a.remember(fa)
		return fa, nil
	} else if a.cache != nil {
		a.misses.Add(1)
	}

	src, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, schema.NewError(schema.Unreadable, "cannot read "+display, err)
	}

	fa, err := a.analyzeSource(ctx, l, display, src)
	if err != nil {
		return nil, err
	}
	fa.ModTime = info.ModTime()

	a.storeResult(key, fa)
	a.remember(fa)
	return fa, nil
}

// analyzeSource parses src under the per-file timeout and builds its FileAnalysis.
func (a *Analyzer) analyzeSource(ctx context.Context, l *lang.Language, display string, src []byte) (*schema.FileAnalysis, error) {
	pctx, cancel := context.WithTimeout(ctx, a.cfg.ParseTimeout)
	defer cancel()
	deadline, _ := pctx.Deadline()

	tree, err := l.Parse(pctx, src)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	// The timer may not have fired yet when a short parse ends past the deadline
	if errors.Is(pctx.Err(), context.DeadlineExceeded) || !time.Now().Before(deadline) {
		return nil, schema.Errorf(schema.Timeout, "parsing %s exceeded %s", display, a.cfg.ParseTimeout)
	}
	if err != nil {
		return nil, schema.NewError(schema.ParseFailure, "cannot parse "+display, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if line, bad := firstErrorLine(root); bad {
		return nil, schema.Errorf(schema.ParseFailure, "malformed %s source in %s", l.Name, display).
			WithDetails(map[string]int{"line": line})
	}

	ext := l.Extract(root, src)
	return buildFileAnalysis(l, display, src, ext), nil
}

// remember records the summary used by GetStatistics.
func (a *Analyzer) remember(fa *schema.FileAnalysis) {
	s := fileSummary{
		language:   fa.Language,
		complexity: fa.ComplexityScore,
		elements:   make(map[schema.ElementType]int),
	}
	for _, el := range fa.Elements {
		s.elements[el.Type]++
	}
	a.mu.Lock()
	a.summaries[fa.FilePath] = s
	a.mu.Unlock()
}

// Invalidate forces the next analysis of path to bypass the cache.
func (a *Analyzer) Invalidate(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidated[path] = true
	delete(a.summaries, path)
}

func (a *Analyzer) takeInvalidated(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.invalidated[path] {
		return false
	}
	delete(a.invalidated, path)
	return true
}

// Graph returns the dependency graph of the last workspace analysis, or nil.
func (a *Analyzer) Graph() *schema.DependencyGraph {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.graph
}

// GetStatistics summarizes every file analyzed so far.
func (a *Analyzer) GetStatistics() schema.AnalyzerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := schema.AnalyzerStats{
		FilesAnalyzed:   len(a.summaries),
		ByLanguage:      make(map[string]int),
		ByElementType:   make(map[schema.ElementType]int),
		HotspotCount:    a.hotspots,
		DuplicateGroups: a.duplicates,
		CacheHits:       a.hits.Load(),
		CacheMisses:     a.misses.Load(),
	}
	total := 0
	for _, s := range a.summaries {
		stats.ByLanguage[s.language]++
		for t, n := range s.elements {
			stats.ByElementType[t] += n
		}
		total += s.complexity
	}
	if stats.FilesAnalyzed > 0 {
		stats.AverageComplexity = float64(total) / float64(stats.FilesAnalyzed)
	}
	return stats
}
