package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

const (
	// indexFile holds the current version of every pattern.
	indexFile = "patterns.json"
	// storeDir holds archived versions as store/<id>/v<N>.json.
	storeDir = "store"
	// indexVersion is the version of the index and export documents.
	indexVersion = 1
)

// Initialize loads the index and archived versions from storage, creating
// storage when absent. A corrupt index is quarantined and the notebook
// starts empty; the returned CorruptStorage error leaves it usable.
func (n *Notebook) Initialize(ctx context.Context) error {
	n.saveMu.Lock()
	defer n.saveMu.Unlock()

	if err := n.fs.MkdirAll(storeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create notebook storage: %w", err)
	}

	data, err := afero.ReadFile(n.fs, indexFile)
	if errors.Is(err, os.ErrNotExist) {
		n.reset(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", indexFile, err)
	}

	doc, err := decodeExport(data)
	if err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", indexFile, n.now().Unix())
		if rerr := n.fs.Rename(indexFile, quarantine); rerr != nil {
			n.logger.Error("failed to quarantine corrupt index", zap.Error(rerr))
		}
		n.reset(nil)
		return schema.NewError(schema.CorruptStorage, "pattern index is corrupt, moved to "+quarantine, err)
	}

	records := make(map[string]*record, len(doc.Patterns))
	for _, pr := range doc.Patterns {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := pr.Current.ID
		versions, err := n.readArchive(id)
		if err != nil {
			n.logger.Warn("skipping unreadable pattern archive", zap.String("id", id), zap.Error(err))
		}
		records[id] = &record{current: pr.Current, versions: versions}
	}
	n.reset(records)
	n.logger.Debug("notebook loaded", zap.Int("patterns", len(records)))
	return nil
}

// reset replaces the index. Callers hold saveMu.
func (n *Notebook) reset(records map[string]*record) {
	if records == nil {
		records = make(map[string]*record)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = records
	n.bySnippet = make(map[string]string, len(records))
	n.written = make(map[string]int, len(records))
	for id, r := range records {
		n.written[id] = len(r.versions)
		n.linkSnippet(r.current)
	}
	n.dirty.Store(false)
}

// linkSnippet indexes p by its source snippet, keeping the oldest pattern on conflict.
func (n *Notebook) linkSnippet(p schema.FunctionPattern) {
	if p.SourceSnippetID == "" {
		return
	}
	if other, ok := n.bySnippet[p.SourceSnippetID]; ok && n.records[other].current.Metadata.CreatedAt.Before(p.Metadata.CreatedAt) {
		return
	}
	n.bySnippet[p.SourceSnippetID] = p.ID
}

// readArchive loads store/<id>/v<N>.json files ordered by version.
func (n *Notebook) readArchive(id string) ([]schema.FunctionPattern, error) {
	dir := path.Join(storeDir, id)
	infos, err := afero.ReadDir(n.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var versions []schema.FunctionPattern
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json")); err != nil {
			continue
		}
		data, err := afero.ReadFile(n.fs, path.Join(dir, name))
		if err != nil {
			return versions, err
		}
		var p schema.FunctionPattern
		if err := json.Unmarshal(data, &p); err != nil {
			return versions, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		versions = append(versions, p)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

// Save persists the index and any archived versions not yet on disk.
// Writes are atomic and happen under the read lock.
func (n *Notebook) Save() error {
	n.saveMu.Lock()
	defer n.saveMu.Unlock()

	n.mu.RLock()
	defer n.mu.RUnlock()
	n.dirty.Store(false)

	doc := schema.PatternExport{Version: indexVersion, ExportedAt: n.now(), Patterns: make([]schema.PatternRecord, 0, len(n.records))}
	for _, id := range n.sortedIDsLocked() {
		r := n.records[id]
		for i := n.written[id]; i < len(r.versions); i++ {
			v := r.versions[i]
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				n.dirty.Store(true)
				return err
			}
			if err := contract.WriteFileAtomic(n.fs, path.Join(storeDir, id, fmt.Sprintf("v%d.json", v.Version)), data); err != nil {
				n.dirty.Store(true)
				return err
			}
			n.written[id] = i + 1
		}
		doc.Patterns = append(doc.Patterns, schema.PatternRecord{Current: r.current})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		n.dirty.Store(true)
		return err
	}
	if err := contract.WriteFileAtomic(n.fs, indexFile, data); err != nil {
		n.dirty.Store(true)
		return err
	}
	n.lastSaved.Store(n.now().UnixNano())
	n.logger.Debug("notebook saved", zap.Int("patterns", len(doc.Patterns)))
	return nil
}

// Dirty reports whether there are unsaved changes.
func (n *Notebook) Dirty() bool {
	return n.dirty.Load()
}

// Start launches the autosave loop when enabled. It returns immediately.
func (n *Notebook) Start(ctx context.Context) {
	if !n.cfg.AutoSave {
		return
	}
	interval := n.cfg.AutoSaveInterval
	if interval <= 0 {
		interval = contract.DefaultAutoSaveInterval
	}

	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.cancel != nil {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !n.dirty.Load() {
					continue
				}
				if err := n.Save(); err != nil {
					n.logger.Error("autosave failed", zap.Error(err))
				}
			}
		}
	})
}

// Close stops autosave and flushes unsaved changes.
func (n *Notebook) Close() error {
	n.runMu.Lock()
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.runMu.Unlock()
	n.wg.Wait()

	if !n.dirty.Load() {
		return nil
	}
	return n.Save()
}

// ExportPatterns writes every pattern with its full history to path.
func (n *Notebook) ExportPatterns(p string) error {
	n.mu.RLock()
	doc := schema.PatternExport{Version: indexVersion, ExportedAt: n.now(), Patterns: make([]schema.PatternRecord, 0, len(n.records))}
	for _, id := range n.sortedIDsLocked() {
		doc.Patterns = append(doc.Patterns, n.records[id].snapshot())
	}
	n.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return contract.WriteFileAtomic(n.exportFs, p, data)
}

// ImportPatterns merges the patterns of an export into the notebook.
// Records are matched by id and the higher version wins.
func (n *Notebook) ImportPatterns(p string) error {
	data, err := afero.ReadFile(n.exportFs, p)
	if err != nil {
		return schema.NewError(schema.NotFound, "cannot read pattern export "+filepath.Base(p), err)
	}
	doc, err := decodeExport(data)
	if err != nil {
		return schema.NewError(schema.CorruptStorage, "cannot decode pattern export "+filepath.Base(p), err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	added := 0
	for _, pr := range doc.Patterns {
		if _, ok := n.records[pr.Current.ID]; !ok {
			added++
		}
	}
	if len(n.records)+added > n.cfg.MaxPatterns {
		return schema.Errorf(schema.CapacityExceeded, "import would hold %d patterns, limit is %d", len(n.records)+added, n.cfg.MaxPatterns)
	}

	for _, pr := range doc.Patterns {
		id := pr.Current.ID
		if existing, ok := n.records[id]; ok && existing.current.Version > pr.Current.Version {
			continue
		}
		r := &record{current: pr.Current.Clone()}
		for i := range pr.Versions {
			r.versions = append(r.versions, pr.Versions[i].Clone())
		}
		n.records[id] = r
		n.written[id] = 0
		n.linkSnippet(r.current)
	}
	n.dirty.Store(true)
	n.logger.Info("patterns imported", zap.Int("records", len(doc.Patterns)), zap.Int("added", added))
	return nil
}

func (n *Notebook) sortedIDsLocked() []string {
	ids := make([]string, 0, len(n.records))
	for id := range n.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// decodeExport parses and validates a pattern document.
func decodeExport(data []byte) (schema.PatternExport, error) {
	var doc schema.PatternExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	if doc.Version != indexVersion {
		return doc, fmt.Errorf("unsupported document version %d", doc.Version)
	}
	seen := make(map[string]struct{}, len(doc.Patterns))
	for _, pr := range doc.Patterns {
		if err := validatePattern(pr.Current); err != nil {
			return doc, err
		}
		if _, dup := seen[pr.Current.ID]; dup {
			return doc, fmt.Errorf("duplicate pattern id %s", pr.Current.ID)
		}
		seen[pr.Current.ID] = struct{}{}
	}
	return doc, nil
}

func validatePattern(p schema.FunctionPattern) error {
	if p.ID == "" || p.Version < 1 {
		return fmt.Errorf("pattern %q has no id or version", p.Name)
	}
	if strings.ContainsAny(p.ID, `/\`) || p.ID == "." || p.ID == ".." {
		return fmt.Errorf("pattern id %q is not a valid name", p.ID)
	}
	if _, ok := schema.ValidApprovalStatuses[p.ApprovalStatus]; !ok {
		return fmt.Errorf("pattern %s has invalid status %q", p.ID, p.ApprovalStatus)
	}
	if _, ok := schema.ValidPatternCategories[p.Category]; !ok {
		return fmt.Errorf("pattern %s has invalid category %q", p.ID, p.Category)
	}
	return nil
}
