// Package notebook stores curated, versioned function patterns and their review state.
package notebook

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// defaultActor is stamped on patterns created without an explicit author.
const defaultActor = "user"

// record is the in-memory state of one pattern.
type record struct {
	current  schema.FunctionPattern
	versions []schema.FunctionPattern // Archived versions, oldest first
}

// Notebook is the pattern store. It is safe for concurrent use.
type Notebook struct {
	cfg      contract.NotebookConfig
	fs       afero.Fs // Scoped to the storage path
	exportFs afero.Fs
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	mu        sync.RWMutex
	records   map[string]*record
	bySnippet map[string]string // Source snippet id to pattern id
	dirty     atomic.Bool

	saveMu    sync.Mutex
	written   map[string]int // Pattern id to number of archived versions on disk
	lastSaved atomic.Int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Notebook.
type Option func(*Notebook)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notebook) { n.logger = contract.LoggerOrNop(logger) }
}

// WithExportFs sets the file system used by ExportPatterns and ImportPatterns.
func WithExportFs(fs afero.Fs) Option {
	return func(n *Notebook) { n.exportFs = fs }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notebook) { n.now = now }
}

// WithIDGenerator overrides pattern id generation.
func WithIDGenerator(gen func() string) Option {
	return func(n *Notebook) { n.newID = gen }
}

// New creates a Notebook persisting under cfg.StoragePath on fs.
func New(cfg contract.NotebookConfig, fs afero.Fs, opts ...Option) *Notebook {
	n := &Notebook{
		cfg:       cfg,
		fs:        afero.NewBasePathFs(fs, cfg.StoragePath),
		exportFs:  afero.NewOsFs(),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		records:   make(map[string]*record),
		bySnippet: make(map[string]string),
		written:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.cfg.MaxPatterns <= 0 {
		n.cfg.MaxPatterns = contract.DefaultMaxPatterns
	}
	if n.cfg.MaxSteps <= 0 {
		n.cfg.MaxSteps = contract.DefaultMaxSteps
	}
	if _, ok := schema.ValidApprovalStatuses[n.cfg.DefaultApproval]; !ok {
		n.cfg.DefaultApproval = schema.PendingStatus
	}
	return n
}

// Len returns the number of patterns.
func (n *Notebook) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.records)
}

// GeneratePatternFromSnippet creates a version 1 pattern seeded from snippet.
func (n *Notebook) GeneratePatternFromSnippet(snippet schema.CodeSnippet, overrides schema.PatternOverrides) (schema.FunctionPattern, error) {
	steps := overrides.Steps
	if len(steps) == 0 {
		steps = []schema.PatternStep{{
			Description:  "Apply " + strings.ReplaceAll(string(snippet.Type), "_", " "),
			CodeFragment: snippet.Code,
			Language:     snippet.Language,
		}}
	}

	p := schema.FunctionPattern{
		Name:            firstNonEmpty(overrides.Name, generatedName(snippet)),
		Category:        overrides.Category,
		ComplexityTier:  overrides.ComplexityTier,
		Steps:           steps,
		Description:     firstNonEmpty(overrides.Description, fmt.Sprintf("Recurring %s seen %d times", snippet.Type, snippet.Frequency)),
		Language:        snippet.Language,
		ApprovalStatus:  overrides.ApprovalStatus,
		SourceSnippetID: snippet.ID,
		Score:           snippet.Score,
		Tags:            overrides.Tags,
	}
	if p.Category == "" {
		p.Category = schema.CategoryForSnippet(snippet.Type)
	}
	if len(p.Tags) == 0 {
		p.Tags = []string{snippet.Language, string(snippet.Type)}
	}
	return n.CreatePattern(p, overrides.CreatedBy)
}

// CreatePattern stores draft as a new version 1 pattern authored by actor.
// The id, version, metadata and transitions of draft are ignored.
func (n *Notebook) CreatePattern(draft schema.FunctionPattern, actor string) (schema.FunctionPattern, error) {
	actor = firstNonEmpty(actor, defaultActor)
	p := draft.Clone()
	if strings.TrimSpace(p.Name) == "" {
		return schema.FunctionPattern{}, fmt.Errorf("pattern name cannot be empty")
	}
	if p.Category == "" {
		p.Category = schema.UtilityCategory
	}
	if _, ok := schema.ValidPatternCategories[p.Category]; !ok {
		return schema.FunctionPattern{}, fmt.Errorf("invalid pattern category '%s'", p.Category)
	}
	if p.ApprovalStatus == "" {
		p.ApprovalStatus = n.cfg.DefaultApproval
	}
	if _, ok := schema.ValidApprovalStatuses[p.ApprovalStatus]; !ok {
		return schema.FunctionPattern{}, fmt.Errorf("invalid approval status '%s'", p.ApprovalStatus)
	}
	if len(p.Steps) > n.cfg.MaxSteps {
		return schema.FunctionPattern{}, schema.Errorf(schema.CapacityExceeded, "pattern has %d steps, limit is %d", len(p.Steps), n.cfg.MaxSteps)
	}
	p.Steps = numberSteps(p.Steps, p.Language)
	if p.ComplexityTier == "" {
		p.ComplexityTier = tierFor(p.Steps)
	}

	now := n.now()
	p.Version = 1
	p.Metadata = schema.PatternMetadata{CreatedBy: actor, UpdatedBy: actor, CreatedAt: now, UpdatedAt: now}
	p.Transitions = []schema.StatusTransition{{Version: 1, To: p.ApprovalStatus, Actor: actor, At: now}}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.records) >= n.cfg.MaxPatterns {
		return schema.FunctionPattern{}, schema.Errorf(schema.CapacityExceeded, "notebook holds %d patterns, limit is %d", len(n.records), n.cfg.MaxPatterns)
	}
	p.ID = n.newID()
	for n.records[p.ID] != nil {
		p.ID = n.newID()
	}
	n.records[p.ID] = &record{current: p}
	if p.SourceSnippetID != "" {
		if _, linked := n.bySnippet[p.SourceSnippetID]; !linked {
			n.bySnippet[p.SourceSnippetID] = p.ID
		}
	}
	n.dirty.Store(true)
	n.logger.Debug("pattern created", zap.String("id", p.ID), zap.String("name", p.Name), zap.String("actor", actor))
	return p.Clone(), nil
}

// GetPattern returns a copy of the current version of a pattern.
func (n *Notebook) GetPattern(id string) (schema.FunctionPattern, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.records[id]
	if !ok {
		return schema.FunctionPattern{}, notFound(id)
	}
	return r.current.Clone(), nil
}

// History returns the current version together with every archived version.
func (n *Notebook) History(id string) (schema.PatternRecord, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.records[id]
	if !ok {
		return schema.PatternRecord{}, notFound(id)
	}
	return r.snapshot(), nil
}

// FindBySnippet returns the pattern promoted from a snippet, if any.
func (n *Notebook) FindBySnippet(snippetID string) (schema.FunctionPattern, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.bySnippet[snippetID]
	if !ok {
		return schema.FunctionPattern{}, false
	}
	return n.records[id].current.Clone(), true
}

// SearchPatterns returns patterns matching query and filters, best first.
// The query matches case-insensitively on name, description, tags and step text.
func (n *Notebook) SearchPatterns(query string, filters schema.PatternFilters) []schema.FunctionPattern {
	needle := strings.ToLower(strings.TrimSpace(query))
	n.mu.RLock()
	result := make([]schema.FunctionPattern, 0)
	for _, r := range n.records {
		p := &r.current
		if filters.Language != "" && p.Language != filters.Language {
			continue
		}
		if filters.Category != "" && p.Category != filters.Category {
			continue
		}
		if filters.ApprovalStatus != "" && p.ApprovalStatus != filters.ApprovalStatus {
			continue
		}
		if needle != "" && !matches(p, needle) {
			continue
		}
		result = append(result, p.Clone())
	}
	n.mu.RUnlock()
	schema.SortPatterns(result)
	return result
}

// Approve moves a pending pattern to APPROVED. Approving an approved pattern is a no-op.
func (n *Notebook) Approve(id, actor string) (schema.FunctionPattern, error) {
	return n.transition(id, actor, schema.ApprovedStatus)
}

// Reject moves a pending pattern to REJECTED. Rejecting a rejected pattern is a no-op.
func (n *Notebook) Reject(id, actor string) (schema.FunctionPattern, error) {
	return n.transition(id, actor, schema.RejectedStatus)
}

func (n *Notebook) transition(id, actor string, to schema.ApprovalStatus) (schema.FunctionPattern, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.records[id]
	if !ok {
		return schema.FunctionPattern{}, notFound(id)
	}
	p := &r.current
	switch p.ApprovalStatus {
	case to:
		return p.Clone(), nil
	case schema.PendingStatus:
	default:
		return schema.FunctionPattern{}, schema.Errorf(schema.InvalidTransition, "cannot move pattern %s from %s to %s", id, p.ApprovalStatus, to)
	}

	actor = firstNonEmpty(actor, defaultActor)
	now := n.now()
	p.Transitions = append(p.Transitions, schema.StatusTransition{Version: p.Version, From: p.ApprovalStatus, To: to, Actor: actor, At: now})
	p.ApprovalStatus = to
	p.Metadata.UpdatedBy = actor
	p.Metadata.UpdatedAt = now
	n.dirty.Store(true)
	n.logger.Debug("pattern status changed", zap.String("id", id), zap.String("status", string(to)), zap.String("actor", actor))
	return p.Clone(), nil
}

// Revise applies update as a new version. The previous version is archived
// and the new one awaits review.
func (n *Notebook) Revise(id string, update schema.PatternUpdate, actor string) (schema.FunctionPattern, error) {
	if update.Category != nil {
		if _, ok := schema.ValidPatternCategories[*update.Category]; !ok {
			return schema.FunctionPattern{}, fmt.Errorf("invalid pattern category '%s'", *update.Category)
		}
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return schema.FunctionPattern{}, fmt.Errorf("pattern name cannot be empty")
	}
	if len(update.Steps) > n.cfg.MaxSteps {
		return schema.FunctionPattern{}, schema.Errorf(schema.CapacityExceeded, "pattern has %d steps, limit is %d", len(update.Steps), n.cfg.MaxSteps)
	}
	return n.bump(id, actor, func(p *schema.FunctionPattern) error {
		if update.Name != nil {
			p.Name = *update.Name
		}
		if update.Description != nil {
			p.Description = *update.Description
		}
		if update.Category != nil {
			p.Category = *update.Category
		}
		if update.Steps != nil {
			p.Steps = numberSteps(slices.Clone(update.Steps), p.Language)
			p.ComplexityTier = tierFor(p.Steps)
		}
		if update.Tags != nil {
			p.Tags = slices.Clone(update.Tags)
		}
		return nil
	})
}

// AddStep appends a step as a new version of the pattern.
func (n *Notebook) AddStep(id string, step schema.PatternStep, actor string) (schema.FunctionPattern, error) {
	return n.bump(id, actor, func(p *schema.FunctionPattern) error {
		if len(p.Steps)+1 > n.cfg.MaxSteps {
			return schema.Errorf(schema.CapacityExceeded, "pattern %s already has %d steps, limit is %d", p.ID, len(p.Steps), n.cfg.MaxSteps)
		}
		step.ID = ""
		p.Steps = numberSteps(append(p.Steps, step), p.Language)
		p.ComplexityTier = tierFor(p.Steps)
		return nil
	})
}

// bump archives the current version and applies change to a fresh copy.
// The pattern is left untouched when change fails or changes nothing.
func (n *Notebook) bump(id, actor string, change func(*schema.FunctionPattern) error) (schema.FunctionPattern, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.records[id]
	if !ok {
		return schema.FunctionPattern{}, notFound(id)
	}
	next := r.current.Clone()
	if err := change(&next); err != nil {
		return schema.FunctionPattern{}, err
	}
	if cmp.Equal(next, r.current, cmpopts.EquateEmpty()) {
		return r.current.Clone(), nil
	}

	actor = firstNonEmpty(actor, defaultActor)
	now := n.now()
	next.Version = r.current.Version + 1
	next.Metadata.UpdatedBy = actor
	next.Metadata.UpdatedAt = now
	if next.ApprovalStatus != schema.PendingStatus {
		next.Transitions = append(next.Transitions, schema.StatusTransition{
			Version: next.Version, From: next.ApprovalStatus, To: schema.PendingStatus, Actor: actor, At: now,
		})
		next.ApprovalStatus = schema.PendingStatus
	}
	r.versions = append(r.versions, r.current)
	r.current = next
	n.dirty.Store(true)
	n.logger.Debug("pattern revised", zap.String("id", id), zap.Int("version", next.Version), zap.String("actor", actor))
	return next.Clone(), nil
}

// RecordUsage increments the usage counter of a pattern.
func (n *Notebook) RecordUsage(id string) (schema.FunctionPattern, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.records[id]
	if !ok {
		return schema.FunctionPattern{}, notFound(id)
	}
	r.current.Metadata.UsageCount++
	n.dirty.Store(true)
	return r.current.Clone(), nil
}

// Stats summarizes the pattern store.
func (n *Notebook) Stats() schema.NotebookStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	stats := schema.NotebookStats{
		TotalPatterns: len(n.records),
		ByStatus:      make(map[schema.ApprovalStatus]int),
		ByCategory:    make(map[schema.PatternCategory]int),
		ByLanguage:    make(map[string]int),
	}
	for _, r := range n.records {
		stats.ByStatus[r.current.ApprovalStatus]++
		stats.ByCategory[r.current.Category]++
		stats.ByLanguage[r.current.Language]++
		stats.TotalVersions += len(r.versions) + 1
		stats.TotalUsage += r.current.Metadata.UsageCount
	}
	if ts := n.lastSaved.Load(); ts > 0 {
		stats.LastSavedAt = time.Unix(0, ts)
	}
	return stats
}

// snapshot deep-copies a record for callers.
func (r *record) snapshot() schema.PatternRecord {
	out := schema.PatternRecord{Current: r.current.Clone()}
	if len(r.versions) > 0 {
		out.Versions = make([]schema.FunctionPattern, len(r.versions))
		for i := range r.versions {
			out.Versions[i] = r.versions[i].Clone()
		}
	}
	return out
}

func matches(p *schema.FunctionPattern, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) || strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	for _, s := range p.Steps {
		if strings.Contains(strings.ToLower(s.Description), needle) || strings.Contains(strings.ToLower(s.CodeFragment), needle) {
			return true
		}
	}
	return false
}

// numberSteps assigns sequential step ids and fills in a missing language.
func numberSteps(steps []schema.PatternStep, language string) []schema.PatternStep {
	for i := range steps {
		steps[i].ID = fmt.Sprintf("step-%d", i+1)
		if steps[i].Language == "" {
			steps[i].Language = language
		}
	}
	return steps
}

// tierFor derives a complexity tier from the number and size of steps.
func tierFor(steps []schema.PatternStep) schema.ComplexityTier {
	lines := 0
	for _, s := range steps {
		lines += strings.Count(strings.TrimSpace(s.CodeFragment), "\n") + 1
	}
	switch {
	case len(steps) > 3 || lines > 30:
		return schema.ComplexTier
	case len(steps) > 1 || lines > 5:
		return schema.ModerateTier
	default:
		return schema.SimpleTier
	}
}

// generatedName titles a pattern after its snippet's first line of code.
func generatedName(s schema.CodeSnippet) string {
	code := s.Code
	if i := strings.IndexByte(code, '\n'); i >= 0 {
		code = code[:i]
	}
	code = strings.TrimSpace(strings.ToValidUTF8(code, "\uFFFD"))
	if r := []rune(code); len(r) > 60 {
		code = string(r[:57]) + "..."
	}
	if code == "" {
		return strings.ReplaceAll(string(s.Type), "_", " ")
	}
	return fmt.Sprintf("%s: %s", strings.ReplaceAll(string(s.Type), "_", " "), code)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func notFound(id string) error {
	return schema.Errorf(schema.NotFound, "pattern %s not found", id)
}
