package analyzer

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huangsam/codeintel/internal/discover"
	"github.com/huangsam/codeintel/schema"
)

// AnalyzeWorkspace analyzes every supported file under root with bounded concurrency.
// Per-file failures are collected and never abort the scan. On cancellation the
// files finished so far are linked and returned together with ctx.Err().
func (a *Analyzer) AnalyzeWorkspace(ctx context.Context, root string) (*schema.WorkspaceAnalysis, error) {
	start := time.Now()
	ws := &schema.WorkspaceAnalysis{
		Root:            root,
		Files:           []schema.FileAnalysis{},
		Failures:        []schema.Failure{},
		Hotspots:        []schema.Hotspot{},
		DuplicateGroups: []schema.DuplicateGroup{},
	}

	entries, err := discover.Files(ctx, a.fs, root, discover.Options{
		Languages: a.cfg.Languages,
		Excludes:  a.cfg.Excludes,
	})
	if err != nil {
		ws.Graph = schema.NewDependencyGraph()
		if ctx.Err() != nil {
			return ws, ctx.Err()
		}
		return nil, schema.NewError(schema.Unreadable, "cannot walk "+root, err)
	}

	// Each worker writes only to its own slot
	results := make([]*schema.FileAnalysis, len(entries))
	failures := make([]*schema.Failure, len(entries))

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Workers)
	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fa, err := a.analyzePath(ctx, entry.Path, entry.RelPath)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				f := schema.NewFailure(entry.RelPath, err)
				failures[i] = &f
				a.logger.Debug("file analysis failed", zap.String("file", entry.RelPath), zap.String("reason", string(f.Reason)))
				return nil
			}
			results[i] = fa
			return nil
		})
	}
	_ = g.Wait()

	for i := range entries {
		if results[i] != nil {
			ws.Files = append(ws.Files, *results[i])
		}
		if failures[i] != nil {
			ws.Failures = append(ws.Failures, *failures[i])
		}
	}

	ws.Graph = a.linkWorkspace(ws)
	ws.Duration = time.Since(start)

	a.mu.Lock()
	a.graph = ws.Graph
	a.hotspots = len(ws.Hotspots)
	a.duplicates = len(ws.DuplicateGroups)
	a.mu.Unlock()

	a.logger.Info("workspace analyzed",
		zap.String("root", root),
		zap.Int("files", len(ws.Files)),
		zap.Int("failures", len(ws.Failures)),
		zap.Int("hotspots", len(ws.Hotspots)),
		zap.Duration("duration", ws.Duration))
	return ws, ctx.Err()
}

// linkWorkspace resolves cross-file edges, recounts references and flags
// duplicates and hotspots. It mutates ws.Files in place.
func (a *Analyzer) linkWorkspace(ws *schema.WorkspaceAnalysis) *schema.DependencyGraph {
	g := schema.NewDependencyGraph()
	modules := newModuleIndex()
	byName := make(map[string][]string)
	elements := make(map[string]*schema.CodeElement)

	for fi := range ws.Files {
		fa := &ws.Files[fi]
		g.AddNode(schema.GraphNode{ID: fa.ModuleID(), Name: fa.FilePath, FilePath: fa.FilePath, Module: true})
		modules.add(fa)
		for ei := range fa.Elements {
			el := &fa.Elements[ei]
			el.ReferenceCount = 0
			el.IsHotspot = false
			el.DuplicateGroupID = ""
			if el.Type == schema.ImportElement {
				continue
			}
			g.AddNode(schema.GraphNode{ID: el.ID, Name: el.Name, FilePath: el.FilePath})
			elements[el.ID] = el
			switch el.Type {
			case schema.FunctionElement, schema.MethodElement, schema.ClassElement:
				byName[el.Name] = append(byName[el.Name], el.ID)
			}
		}
	}

	for fi := range ws.Files {
		fa := &ws.Files[fi]
		for _, e := range fa.DependencyEdges {
			switch {
			case strings.HasPrefix(e.To, importTargetPrefix):
				target := strings.TrimPrefix(e.To, importTargetPrefix)
				resolved := modules.resolve(fa, target)
				if len(resolved) == 0 {
					// External dependency
					g.AddEdge(schema.DependencyEdge{From: e.From, To: e.To, Kind: e.Kind, Line: e.Line})
					continue
				}
				for _, to := range resolved {
					g.AddEdge(schema.DependencyEdge{From: e.From, To: to, Kind: e.Kind, Line: e.Line})
				}
			case strings.HasPrefix(e.To, symbolTargetPrefix):
				// Only unambiguous names are linked across files
				candidates := byName[strings.TrimPrefix(e.To, symbolTargetPrefix)]
				if len(candidates) != 1 || candidates[0] == e.From {
					continue
				}
				g.AddEdge(schema.DependencyEdge{From: e.From, To: candidates[0], Kind: e.Kind, Line: e.Line})
				elements[candidates[0]].ReferenceCount++
			default:
				g.AddEdge(e)
				if el, ok := elements[e.To]; ok {
					el.ReferenceCount++
				}
			}
		}
	}

	ws.DuplicateGroups = findDuplicates(ws.Files, a.cfg.DuplicateThreshold, a.cfg.MinDuplicateTokens)
	groupSize := make(map[string]int, len(ws.DuplicateGroups))
	for _, dg := range ws.DuplicateGroups {
		groupSize[dg.ID] = len(dg.ElementIDs)
		for _, id := range dg.ElementIDs {
			if el, ok := elements[id]; ok {
				el.DuplicateGroupID = dg.ID
			}
		}
	}

	threshold := max(1, a.cfg.HotspotThreshold)
	for fi := range ws.Files {
		fa := &ws.Files[fi]
		fa.IsHotspot = g.InDegree(fa.ModuleID()) >= threshold
		fa.DuplicateGroupID = ""
		for ei := range fa.Elements {
			el := &fa.Elements[ei]
			if el.DuplicateGroupID != "" && fa.DuplicateGroupID == "" {
				fa.DuplicateGroupID = el.DuplicateGroupID
			}
			dupCount := groupSize[el.DuplicateGroupID]
			if el.ReferenceCount < threshold && dupCount < threshold {
				continue
			}
			el.IsHotspot = true
			fa.IsHotspot = true
			ws.Hotspots = append(ws.Hotspots, schema.Hotspot{
				ElementID:      el.ID,
				Name:           el.Name,
				FilePath:       el.FilePath,
				ReferenceCount: el.ReferenceCount,
				DuplicateCount: dupCount,
			})
		}
	}
	sort.Slice(ws.Hotspots, func(i, j int) bool {
		si := ws.Hotspots[i].ReferenceCount + ws.Hotspots[i].DuplicateCount
		sj := ws.Hotspots[j].ReferenceCount + ws.Hotspots[j].DuplicateCount
		if si != sj {
			return si > sj
		}
		return ws.Hotspots[i].ElementID < ws.Hotspots[j].ElementID
	})
	return g
}

// moduleIndex maps workspace-relative stems and directories to module ids.
type moduleIndex struct {
	byStem map[string][]string
	byDir  map[string][]string
}

func newModuleIndex() *moduleIndex {
	return &moduleIndex{byStem: make(map[string][]string), byDir: make(map[string][]string)}
}

func (m *moduleIndex) add(fa *schema.FileAnalysis) {
	rel := fa.FilePath
	stem := strings.TrimSuffix(rel, path.Ext(rel))
	m.byStem[stem] = append(m.byStem[stem], fa.ModuleID())
	if base := path.Base(stem); base == "__init__" || base == "index" || base == "mod" {
		m.byStem[path.Dir(stem)] = append(m.byStem[path.Dir(stem)], fa.ModuleID())
	}
	if dir := path.Dir(rel); dir != "." {
		m.byDir[dir] = append(m.byDir[dir], fa.ModuleID())
	}
}

// resolve maps an import path written in from to workspace module ids.
// Exact stems win over suffix matches; the longest matching directory wins otherwise.
func (m *moduleIndex) resolve(from *schema.FileAnalysis, target string) []string {
	p := importToPath(from, target)
	if p == "" || p == "." {
		return nil
	}
	self := from.ModuleID()
	exclude := func(ids []string) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != self {
				out = append(out, id)
			}
		}
		return out
	}

	if ids, ok := m.byStem[p]; ok {
		return exclude(ids)
	}
	bestStem := ""
	for stem := range m.byStem {
		if (strings.HasSuffix(stem, "/"+p) || strings.HasSuffix(p, "/"+stem)) && len(stem) > len(bestStem) {
			bestStem = stem
		}
	}
	if bestStem != "" {
		return exclude(m.byStem[bestStem])
	}
	bestDir := ""
	for dir := range m.byDir {
		if (dir == p || strings.HasSuffix(p, "/"+dir)) && len(dir) > len(bestDir) {
			bestDir = dir
		}
	}
	if bestDir != "" {
		return exclude(m.byDir[bestDir])
	}
	return nil
}

// importToPath rewrites a language-specific import into a slash path.
func importToPath(from *schema.FileAnalysis, target string) string {
	dir := path.Dir(from.FilePath)
	switch from.Language {
	case "python":
		if strings.HasPrefix(target, ".") {
			trimmed := strings.TrimLeft(target, ".")
			ups := len(target) - len(trimmed) - 1
			for range ups {
				dir = path.Dir(dir)
			}
			return path.Clean(path.Join(dir, strings.ReplaceAll(trimmed, ".", "/")))
		}
		return strings.ReplaceAll(target, ".", "/")
	case "java":
		return strings.TrimSuffix(strings.ReplaceAll(target, ".", "/"), "/*")
	case "rust":
		target = strings.TrimPrefix(target, "crate::")
		target = strings.TrimPrefix(target, "self::")
		return strings.ReplaceAll(target, "::", "/")
	case "javascript", "typescript", "tsx", "ruby":
		if strings.HasPrefix(target, ".") {
			p := path.Clean(path.Join(dir, target))
			return strings.TrimSuffix(p, path.Ext(p))
		}
		return target
	}
	return target
}
