package miner

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huangsam/codeintel/internal/discover"
	"github.com/huangsam/codeintel/internal/lang"
	"github.com/huangsam/codeintel/schema"
)

// fileResult is the map-phase output for one file.
type fileResult struct {
	path        string
	language    string
	occurrences []occurrence
	failure     *schema.Failure
}

// MineWorkspace mines every supported file under root, replaces each file's
// previous contribution with the new one, drops contributions of files that
// disappeared, and then prunes and evicts.
func (m *Miner) MineWorkspace(ctx context.Context, root string) (*schema.MiningResult, error) {
	start := time.Now()
	result := &schema.MiningResult{Root: root, Snippets: []schema.CodeSnippet{}, Failures: []schema.Failure{}}

	entries, err := discover.Files(ctx, m.fs, root, discover.Options{
		Languages: m.cfg.Languages,
		Excludes:  m.cfg.Excludes,
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return nil, schema.NewError(schema.Unreadable, "cannot walk "+root, err)
	}

	results := make([]*fileResult, len(entries))
	g := new(errgroup.Group)
	g.SetLimit(m.cfg.MaxConcurrentFiles)
	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = m.mineEntry(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool, len(entries))
	m.mu.Lock()
	for _, r := range results {
		if r == nil {
			continue
		}
		seen[r.path] = true
		if r.failure != nil {
			result.FilesSkipped++
			result.Failures = append(result.Failures, *r.failure)
			continue
		}
		result.FilesMined++
		m.applyFile(r.path, r.language, r.occurrences)
	}
	if ctx.Err() == nil {
		m.dropMissing(root, seen)
	}
	result.Pruned = m.pruneLocked()
	result.Snippets = m.sortedLocked()
	m.mu.Unlock()

	result.Duration = time.Since(start)
	m.logger.Info("workspace mined",
		zap.String("root", root),
		zap.Int("mined", result.FilesMined),
		zap.Int("skipped", result.FilesSkipped),
		zap.Int("snippets", len(result.Snippets)),
		zap.Int("pruned", result.Pruned))
	return result, ctx.Err()
}

// mineEntry reads, parses and classifies one discovered file.
func (m *Miner) mineEntry(ctx context.Context, entry discover.Entry) *fileResult {
	path := filepath.ToSlash(entry.Path)
	r := &fileResult{path: path, language: entry.Language}
	fail := func(err error) *fileResult {
		f := schema.NewFailure(path, err)
		r.failure = &f
		return r
	}

	if m.cfg.MaxFileSize > 0 && entry.Size > m.cfg.MaxFileSize {
		return fail(schema.Errorf(schema.FileTooLarge, "%s is %d bytes, limit is %d", path, entry.Size, m.cfg.MaxFileSize))
	}
	src, err := afero.ReadFile(m.fs, entry.Path)
	if err != nil {
		return fail(schema.NewError(schema.Unreadable, "cannot read "+path, err))
	}
	occ, err := m.extract(ctx, lang.Languages[entry.Language], path, src)
	if err != nil {
		return fail(err)
	}
	r.occurrences = occ
	return r
}

// extract parses src under the per-file timeout and collects its occurrences.
func (m *Miner) extract(ctx context.Context, l *lang.Language, path string, src []byte) ([]occurrence, error) {
	if l == nil {
		return nil, schema.Errorf(schema.UnsupportedLanguage, "no language for %s", path)
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ParseTimeout)
	defer cancel()
	deadline, _ := pctx.Deadline()

	tree, err := l.Parse(pctx, src)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	// The timer may not have fired yet when a short parse ends past the deadline
	if errors.Is(pctx.Err(), context.DeadlineExceeded) || !time.Now().Before(deadline) {
		return nil, schema.Errorf(schema.Timeout, "parsing %s exceeded %s", path, m.cfg.ParseTimeout)
	}
	if err != nil {
		return nil, schema.NewError(schema.ParseFailure, "cannot parse "+path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, schema.Errorf(schema.ParseFailure, "malformed %s source in %s", l.Name, path)
	}
	return m.collectOccurrences(l, path, l.Extract(root, src)), nil
}

// MineSource mines one in-memory buffer as if it were the file at path.
// Its previous contribution is replaced. Pruning is left to the next
// MineWorkspace or an explicit Prune so buffers can be fed one at a time.
func (m *Miner) MineSource(ctx context.Context, path, language string, src []byte) ([]schema.CodeSnippet, error) {
	l := lang.Languages[language]
	if l == nil {
		l = lang.ForPath(path)
	}
	if l == nil {
		return nil, schema.Errorf(schema.UnsupportedLanguage, "no language for %s", path)
	}
	if m.cfg.MaxFileSize > 0 && int64(len(src)) > m.cfg.MaxFileSize {
		return nil, schema.Errorf(schema.FileTooLarge, "%s is %d bytes, limit is %d", path, len(src), m.cfg.MaxFileSize)
	}
	path = filepath.ToSlash(path)
	occ, err := m.extract(ctx, l, path, src)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.applyFile(path, l.Name, occ)
	out := make([]schema.CodeSnippet, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.snippets[id].Clone())
	}
	schema.SortSnippets(out)
	return out, nil
}

// Prune drops snippets below the frequency or score floor and evicts the
// lowest-scored beyond capacity. It returns how many were removed.
func (m *Miner) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked()
}

// applyFile replaces path's contribution with occ and returns the touched snippet ids.
// Callers hold m.mu.
func (m *Miner) applyFile(path, language string, occ []occurrence) []string {
	now := m.now()
	grouped := make(map[string][]occurrence)
	var order []string
	for _, o := range occ {
		id := schema.SnippetID(language, o.typ, o.fingerprint)
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], o)
	}

	// Withdraw the file from snippets it no longer contributes to
	for id := range m.byFile[path] {
		if _, still := grouped[id]; still {
			continue
		}
		if s, ok := m.snippets[id]; ok {
			m.withdraw(s, path)
			s.UpdatedAt = now
			s.Score = computeScore(s, m.cfg)
		}
	}
	delete(m.byFile, path)
	if len(order) == 0 {
		return nil
	}
	m.byFile[path] = make(map[string]struct{}, len(order))

	for _, id := range order {
		group := grouped[id]
		s, ok := m.snippets[id]
		if !ok {
			first := group[0]
			s = &schema.CodeSnippet{
				ID:                    id,
				Type:                  first.typ,
				NormalizedFingerprint: first.fingerprint,
				Code:                  first.code,
				Language:              language,
				Contexts:              []string{},
				Examples:              []schema.SnippetExample{},
				Sources:               make(map[string][]string),
				CreatedAt:             now,
			}
			m.snippets[id] = s
		}
		if s.Sources == nil {
			s.Sources = make(map[string][]string)
		}
		if s.SourceContexts == nil {
			s.SourceContexts = make(map[string][]string)
		}
		m.withdraw(s, path)

		keys := make([]string, 0, len(group))
		var contexts []string
		for _, o := range group {
			k := o.key()
			if slices.Contains(keys, k) {
				continue
			}
			keys = append(keys, k)
			if o.context != "" && !slices.Contains(contexts, o.context) {
				contexts = append(contexts, o.context)
			}
			if len(s.Examples) < m.cfg.ContextWindow {
				s.Examples = append(s.Examples, schema.SnippetExample{FilePath: path, Line: o.line})
			}
		}
		s.Sources[path] = keys
		if len(contexts) > 0 {
			s.SourceContexts[path] = contexts
		}
		for _, c := range contexts {
			m.addContext(s, c)
		}
		s.Frequency = frequencyOf(s)
		s.UpdatedAt = now
		s.Score = computeScore(s, m.cfg)
		m.byFile[path][id] = struct{}{}
	}
	return order
}

// withdraw removes path's occurrences, examples and mined contexts from s.
// Contexts still backed by another file or by a recorded usage are kept.
func (m *Miner) withdraw(s *schema.CodeSnippet, path string) {
	delete(s.Sources, path)
	delete(s.SourceContexts, path)
	s.Examples = slices.DeleteFunc(s.Examples, func(e schema.SnippetExample) bool { return e.FilePath == path })
	s.Frequency = frequencyOf(s)
	m.rebuildContexts(s)
}

// rebuildContexts keeps the backed contexts of s in their current order, then
// refills freed window slots from the remaining files and usages.
func (m *Miner) rebuildContexts(s *schema.CodeSnippet) {
	backed := make(map[string]bool)
	for _, cs := range s.SourceContexts {
		for _, c := range cs {
			backed[c] = true
		}
	}
	for _, c := range s.UsageContexts {
		backed[c] = true
	}
	s.Contexts = slices.DeleteFunc(s.Contexts, func(c string) bool { return !backed[c] })

	files := make([]string, 0, len(s.SourceContexts))
	for f := range s.SourceContexts {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		for _, c := range s.SourceContexts[f] {
			m.addContext(s, c)
		}
	}
	for _, c := range s.UsageContexts {
		m.addContext(s, c)
	}
}

// dropMissing withdraws files under root that were not seen by the last walk.
func (m *Miner) dropMissing(root string, seen map[string]bool) {
	for path := range m.byFile {
		if seen[path] || !underRoot(root, path) {
			continue
		}
		m.applyFile(path, "", nil)
	}
}

// underRoot reports whether path names root itself or a file below it.
// Both are compared in cleaned slash form, so "." covers every relative path.
func underRoot(root, path string) bool {
	root = filepath.ToSlash(filepath.Clean(root))
	path = filepath.ToSlash(filepath.Clean(path))
	switch {
	case root == ".":
		return !strings.HasPrefix(path, "/") && path != ".." && !strings.HasPrefix(path, "../")
	case root == "/":
		return strings.HasPrefix(path, "/")
	default:
		return path == root || strings.HasPrefix(path, root+"/")
	}
}

// pruneLocked applies the frequency and score floors and the capacity bound.
func (m *Miner) pruneLocked() int {
	removed := 0
	for id, s := range m.snippets {
		if s.Frequency < m.cfg.MinFrequency || s.Score < m.cfg.MinScore {
			m.remove(id)
			removed++
		}
	}
	if m.cfg.MaxSnippets <= 0 || len(m.snippets) <= m.cfg.MaxSnippets {
		return removed
	}

	ranked := make([]*schema.CodeSnippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		ranked = append(ranked, s)
	}
	// Lowest score first; among equals the least used and oldest go first
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if a.Frequency != b.Frequency {
			return a.Frequency < b.Frequency
		}
		if !a.LastUsedAt.Equal(b.LastUsedAt) {
			return a.LastUsedAt.Before(b.LastUsedAt)
		}
		return a.ID > b.ID
	})
	for _, s := range ranked[:len(ranked)-m.cfg.MaxSnippets] {
		m.remove(s.ID)
		removed++
	}
	return removed
}

// remove deletes a snippet and its file index entries.
func (m *Miner) remove(id string) {
	s, ok := m.snippets[id]
	if !ok {
		return
	}
	for path := range s.Sources {
		if ids := m.byFile[path]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(m.byFile, path)
			}
		}
	}
	delete(m.snippets, id)
}

// sortedLocked returns copies of every snippet in ranking order.
func (m *Miner) sortedLocked() []schema.CodeSnippet {
	out := make([]schema.CodeSnippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		out = append(out, s.Clone())
	}
	schema.SortSnippets(out)
	return out
}

// frequencyOf counts distinct source locations across files.
func frequencyOf(s *schema.CodeSnippet) int {
	n := 0
	for _, keys := range s.Sources {
		n += len(keys)
	}
	return n
}
