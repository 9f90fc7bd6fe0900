package notebook

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const storagePath = "/work/.codeintel"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() contract.NotebookConfig {
	return contract.NotebookConfig{
		StoragePath:      storagePath,
		MaxPatterns:      10,
		MaxSteps:         3,
		DefaultApproval:  schema.PendingStatus,
		AutoSaveInterval: 10 * time.Millisecond,
	}
}

// newTestNotebook returns a notebook with deterministic ids and a fixed clock.
func newTestNotebook(t *testing.T, cfg contract.NotebookConfig, fs afero.Fs) *Notebook {
	t.Helper()
	seq := 0
	return New(cfg, fs,
		WithExportFs(fs),
		WithClock(func() time.Time { return epoch }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("pat-%d", seq)
		}),
	)
}

func errorSnippet() schema.CodeSnippet {
	return schema.CodeSnippet{
		ID:        "snp_0001",
		Type:      schema.ErrorHandlingSnippet,
		Code:      "if err != nil {\n\treturn err\n}",
		Language:  "go",
		Frequency: 7,
		Score:     0.72,
	}
}

func TestGeneratePatternFromSnippet(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())

	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)

	assert.Equal(t, "pat-1", p.ID)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, schema.PendingStatus, p.ApprovalStatus)
	assert.Equal(t, schema.ErrorHandlingCategory, p.Category)
	assert.Equal(t, schema.SimpleTier, p.ComplexityTier)
	assert.Equal(t, "error handling: if err != nil {", p.Name)
	assert.Equal(t, "snp_0001", p.SourceSnippetID)
	assert.InDelta(t, 0.72, p.Score, 1e-9)
	assert.Equal(t, []string{"go", "error_handling"}, p.Tags)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "step-1", p.Steps[0].ID)
	assert.Equal(t, "go", p.Steps[0].Language)
	assert.Equal(t, defaultActor, p.Metadata.CreatedBy)
	assert.Equal(t, epoch, p.Metadata.CreatedAt)

	linked, ok := nb.FindBySnippet("snp_0001")
	require.True(t, ok)
	assert.Equal(t, p.ID, linked.ID)
	_, ok = nb.FindBySnippet("snp_missing")
	assert.False(t, ok)
}

func TestGeneratePatternOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultApproval = schema.ApprovedStatus
	nb := newTestNotebook(t, cfg, afero.NewMemMapFs())

	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{
		Name:      "Wrap errors",
		Category:  schema.UtilityCategory,
		CreatedBy: "alice",
		Steps: []schema.PatternStep{
			{Description: "check"},
			{Description: "wrap", CodeFragment: `return fmt.Errorf("load: %w", err)`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Wrap errors", p.Name)
	assert.Equal(t, schema.UtilityCategory, p.Category)
	assert.Equal(t, schema.ApprovedStatus, p.ApprovalStatus)
	assert.Equal(t, schema.ModerateTier, p.ComplexityTier)
	assert.Equal(t, "alice", p.Metadata.CreatedBy)
	assert.Equal(t, []string{"step-1", "step-2"}, []string{p.Steps[0].ID, p.Steps[1].ID})
}

func TestCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPatterns = 1
	nb := newTestNotebook(t, cfg, afero.NewMemMapFs())

	_, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{
		Steps: make([]schema.PatternStep, cfg.MaxSteps+1),
	})
	assert.True(t, errors.Is(err, schema.ErrCapacityExceeded))
	assert.Equal(t, 0, nb.Len())

	_, err = nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)
	_, err = nb.CreatePattern(schema.FunctionPattern{Name: "second"}, "bob")
	assert.True(t, errors.Is(err, schema.ErrCapacityExceeded))
	assert.Equal(t, 1, nb.Len())
}

func TestCreatePatternValidation(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())

	_, err := nb.CreatePattern(schema.FunctionPattern{Name: "  "}, "bob")
	assert.Error(t, err)
	_, err = nb.CreatePattern(schema.FunctionPattern{Name: "x", Category: "misc"}, "bob")
	assert.Error(t, err)

	p, err := nb.CreatePattern(schema.FunctionPattern{Name: "x", Language: "python"}, "")
	require.NoError(t, err)
	assert.Equal(t, schema.UtilityCategory, p.Category)
	assert.Equal(t, defaultActor, p.Metadata.CreatedBy)
	assert.Equal(t, []schema.StatusTransition{{Version: 1, To: schema.PendingStatus, Actor: defaultActor, At: epoch}}, p.Transitions)
}

func TestAddStep(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())
	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)

	p, err = nb.AddStep(p.ID, schema.PatternStep{ID: "ignored", Description: "log it"}, "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, "step-2", p.Steps[1].ID)
	assert.Equal(t, "carol", p.Metadata.UpdatedBy)

	p, err = nb.AddStep(p.ID, schema.PatternStep{Description: "retry"}, "carol")
	require.NoError(t, err)
	assert.Len(t, p.Steps, 3)

	_, err = nb.AddStep(p.ID, schema.PatternStep{Description: "one too many"}, "carol")
	assert.True(t, errors.Is(err, schema.ErrCapacityExceeded))

	after, err := nb.GetPattern(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Version)
	assert.Len(t, after.Steps, 3)

	_, err = nb.AddStep("missing", schema.PatternStep{}, "carol")
	assert.True(t, errors.Is(err, schema.ErrNotFound))
}

func TestApprovalTransitions(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())
	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)

	approved, err := nb.Approve(p.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, schema.ApprovedStatus, approved.ApprovalStatus)
	assert.Equal(t, 1, approved.Version)
	require.Len(t, approved.Transitions, 2)
	assert.Equal(t, schema.StatusTransition{Version: 1, From: schema.PendingStatus, To: schema.ApprovedStatus, Actor: "reviewer", At: epoch}, approved.Transitions[1])

	again, err := nb.Approve(p.ID, "reviewer")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(approved, again))

	_, err = nb.Reject(p.ID, "reviewer")
	assert.True(t, errors.Is(err, schema.ErrInvalidTransition))

	_, err = nb.Approve("missing", "reviewer")
	assert.True(t, errors.Is(err, schema.ErrNotFound))

	q, err := nb.CreatePattern(schema.FunctionPattern{Name: "other"}, "bob")
	require.NoError(t, err)
	rejected, err := nb.Reject(q.ID, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, schema.RejectedStatus, rejected.ApprovalStatus)
	_, err = nb.Approve(q.ID, "reviewer")
	assert.True(t, errors.Is(err, schema.ErrInvalidTransition))
}

func TestReviseArchivesVersion(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())
	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)
	_, err = nb.Approve(p.ID, "reviewer")
	require.NoError(t, err)

	name := "Check and return errors"
	revised, err := nb.Revise(p.ID, schema.PatternUpdate{Name: &name, Tags: []string{"errors"}}, "dave")
	require.NoError(t, err)
	assert.Equal(t, 2, revised.Version)
	assert.Equal(t, name, revised.Name)
	assert.Equal(t, schema.PendingStatus, revised.ApprovalStatus)
	assert.Equal(t, []string{"errors"}, revised.Tags)
	last := revised.Transitions[len(revised.Transitions)-1]
	assert.Equal(t, schema.StatusTransition{Version: 2, From: schema.ApprovedStatus, To: schema.PendingStatus, Actor: "dave", At: epoch}, last)

	history, err := nb.History(p.ID)
	require.NoError(t, err)
	require.Len(t, history.Versions, 1)
	assert.Equal(t, 1, history.Versions[0].Version)
	assert.Equal(t, schema.ApprovedStatus, history.Versions[0].ApprovalStatus)
	assert.Equal(t, revised, history.Current)

	bad := schema.PatternCategory("misc")
	_, err = nb.Revise(p.ID, schema.PatternUpdate{Category: &bad}, "dave")
	assert.Error(t, err)
	_, err = nb.Revise(p.ID, schema.PatternUpdate{Steps: make([]schema.PatternStep, 4)}, "dave")
	assert.True(t, errors.Is(err, schema.ErrCapacityExceeded))
}

func TestSearchPatterns(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())
	mk := func(name, language string, score float64, tags ...string) schema.FunctionPattern {
		p, err := nb.CreatePattern(schema.FunctionPattern{Name: name, Language: language, Score: score, Tags: tags}, "bob")
		require.NoError(t, err)
		return p
	}
	a := mk("Open file", "go", 0.5, "io")
	b := mk("Read config", "go", 0.9)
	c := mk("Parse JSON", "python", 0.9)
	d := mk("Close file", "go", 0.5)
	_, err := nb.RecordUsage(d.ID)
	require.NoError(t, err)
	_, err = nb.Approve(b.ID, "reviewer")
	require.NoError(t, err)

	ids := func(ps []schema.FunctionPattern) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	assert.Equal(t, []string{c.ID, b.ID, d.ID, a.ID}, ids(nb.SearchPatterns("", schema.PatternFilters{})))
	assert.Equal(t, []string{b.ID, d.ID, a.ID}, ids(nb.SearchPatterns("", schema.PatternFilters{Language: "go"})))
	assert.Equal(t, []string{b.ID}, ids(nb.SearchPatterns("", schema.PatternFilters{ApprovalStatus: schema.ApprovedStatus})))
	assert.Equal(t, []string{d.ID, a.ID}, ids(nb.SearchPatterns("FILE", schema.PatternFilters{})))
	assert.Equal(t, []string{a.ID}, ids(nb.SearchPatterns("io", schema.PatternFilters{})))
	assert.Empty(t, nb.SearchPatterns("", schema.PatternFilters{Category: schema.SetupCategory}))
}

func TestSaveAndInitialize(t *testing.T) {
	fs := afero.NewMemMapFs()
	nb := newTestNotebook(t, testConfig(), fs)
	require.NoError(t, nb.Initialize(t.Context()))

	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)
	_, err = nb.AddStep(p.ID, schema.PatternStep{Description: "log"}, "carol")
	require.NoError(t, err)
	_, err = nb.RecordUsage(p.ID)
	require.NoError(t, err)
	assert.True(t, nb.Dirty())
	require.NoError(t, nb.Save())
	assert.False(t, nb.Dirty())

	for _, name := range []string{"patterns.json", "store/pat-1/v1.json"} {
		exists, err := afero.Exists(fs, storagePath+"/"+name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	tmp, err := afero.Exists(fs, storagePath+"/patterns.json.tmp")
	require.NoError(t, err)
	assert.False(t, tmp)

	want, err := nb.History(p.ID)
	require.NoError(t, err)

	reloaded := newTestNotebook(t, testConfig(), fs)
	require.NoError(t, reloaded.Initialize(t.Context()))
	got, err := reloaded.History(p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reloaded history mismatch (-want +got):\n%s", diff)
	}
	linked, ok := reloaded.FindBySnippet("snp_0001")
	require.True(t, ok)
	assert.Equal(t, p.ID, linked.ID)
	assert.True(t, nb.Stats().LastSavedAt.Equal(epoch))
	assert.True(t, reloaded.Stats().LastSavedAt.IsZero())
}

func TestInitializeCorruptStorage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, storagePath+"/patterns.json", []byte("{not json"), 0o644))

	nb := newTestNotebook(t, testConfig(), fs)
	err := nb.Initialize(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrCorruptStorage))

	quarantined, err := afero.Exists(fs, fmt.Sprintf("%s/patterns.json.corrupt-%d", storagePath, epoch.Unix()))
	require.NoError(t, err)
	assert.True(t, quarantined)
	original, err := afero.Exists(fs, storagePath+"/patterns.json")
	require.NoError(t, err)
	assert.False(t, original)

	_, err = nb.CreatePattern(schema.FunctionPattern{Name: "still usable"}, "bob")
	require.NoError(t, err)
	require.NoError(t, nb.Save())
}

func TestInitializeRejectsInvalidRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `{"version":1,"patterns":[{"current":{"id":"p1","name":"x","category":"utility","approvalStatus":"MAYBE","version":1}}]}`
	require.NoError(t, afero.WriteFile(fs, storagePath+"/patterns.json", []byte(doc), 0o644))

	nb := newTestNotebook(t, testConfig(), fs)
	assert.True(t, errors.Is(nb.Initialize(t.Context()), schema.ErrCorruptStorage))
	assert.Equal(t, 0, nb.Len())
}

func TestExportImportRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := newTestNotebook(t, testConfig(), fs)
	p, err := src.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)
	_, err = src.Approve(p.ID, "reviewer")
	require.NoError(t, err)
	_, err = src.AddStep(p.ID, schema.PatternStep{Description: "wrap"}, "carol")
	require.NoError(t, err)
	q, err := src.CreatePattern(schema.FunctionPattern{Name: "Retry loop", Language: "python"}, "bob")
	require.NoError(t, err)
	require.NoError(t, src.ExportPatterns("/exports/patterns.json"))

	cfg := testConfig()
	cfg.StoragePath = "/other/.codeintel"
	dst := newTestNotebook(t, cfg, fs)
	require.NoError(t, dst.Initialize(t.Context()))
	require.NoError(t, dst.ImportPatterns("/exports/patterns.json"))

	assert.Equal(t, src.Len(), dst.Len())
	for _, id := range []string{p.ID, q.ID} {
		want, err := src.History(id)
		require.NoError(t, err)
		got, err := dst.History(id)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("imported %s mismatch (-want +got):\n%s", id, diff)
		}
	}
	assert.Equal(t, src.Stats().TotalVersions, dst.Stats().TotalVersions)

	require.NoError(t, dst.Save())
	exists, err := afero.Exists(fs, "/other/.codeintel/store/"+p.ID+"/v1.json")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.True(t, errors.Is(dst.ImportPatterns("/exports/missing.json"), schema.ErrNotFound))
	require.NoError(t, afero.WriteFile(fs, "/exports/bad.json", []byte("[]"), 0o644))
	assert.True(t, errors.Is(dst.ImportPatterns("/exports/bad.json"), schema.ErrCorruptStorage))
}

func TestAutosave(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := testConfig()
	cfg.AutoSave = true
	nb := newTestNotebook(t, cfg, fs)
	require.NoError(t, nb.Initialize(t.Context()))
	nb.Start(t.Context())
	nb.Start(t.Context())

	_, err := nb.CreatePattern(schema.FunctionPattern{Name: "autosaved"}, "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !nb.Dirty() }, time.Second, 5*time.Millisecond)
	exists, err := afero.Exists(fs, storagePath+"/patterns.json")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, nb.Close())
}

func TestCloseFlushes(t *testing.T) {
	fs := afero.NewMemMapFs()
	nb := newTestNotebook(t, testConfig(), fs)
	nb.Start(t.Context())

	_, err := nb.CreatePattern(schema.FunctionPattern{Name: "flushed"}, "bob")
	require.NoError(t, err)
	require.NoError(t, nb.Close())

	reloaded := newTestNotebook(t, testConfig(), fs)
	require.NoError(t, reloaded.Initialize(t.Context()))
	assert.Equal(t, 1, reloaded.Len())
}

func TestConcurrentUsage(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())
	p, err := nb.CreatePattern(schema.FunctionPattern{Name: "busy"}, "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			_, _ = nb.RecordUsage(p.ID)
			_ = nb.SearchPatterns("busy", schema.PatternFilters{})
			_ = nb.Save()
		})
	}
	wg.Wait()

	got, err := nb.GetPattern(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Metadata.UsageCount)
	assert.Equal(t, 20, nb.Stats().TotalUsage)
}

func TestGeneratedNameKeepsMultiByteCode(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := newTestNotebook(t, testConfig(), fs)
	snippet := errorSnippet()
	snippet.Type = schema.FunctionCallSnippet
	snippet.Code = "log(" + strings.Repeat("é", 80) + ")"

	p, err := src.GeneratePatternFromSnippet(snippet, schema.PatternOverrides{})
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(p.Name))
	assert.Equal(t, "function call: log("+strings.Repeat("é", 53)+"...", p.Name)

	require.NoError(t, src.ExportPatterns("/exports/names.json"))
	cfg := testConfig()
	cfg.StoragePath = "/other/.codeintel"
	dst := newTestNotebook(t, cfg, fs)
	require.NoError(t, dst.Initialize(t.Context()))
	require.NoError(t, dst.ImportPatterns("/exports/names.json"))

	got, err := dst.GetPattern(p.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("imported pattern mismatch (-want +got):\n%s", diff)
	}
}

func TestReviseWithoutChangesKeepsVersion(t *testing.T) {
	nb := newTestNotebook(t, testConfig(), afero.NewMemMapFs())
	p, err := nb.GeneratePatternFromSnippet(errorSnippet(), schema.PatternOverrides{})
	require.NoError(t, err)
	_, err = nb.Approve(p.ID, "reviewer")
	require.NoError(t, err)

	same := p.Name
	tests := []struct {
		name   string
		update schema.PatternUpdate
	}{
		{"empty update", schema.PatternUpdate{}},
		{"same name", schema.PatternUpdate{Name: &same}},
		{"same tags", schema.PatternUpdate{Tags: p.Tags}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nb.Revise(p.ID, tt.update, "dave")
			require.NoError(t, err)
			assert.Equal(t, 1, got.Version)
			assert.Equal(t, schema.ApprovedStatus, got.ApprovalStatus)

			history, err := nb.History(p.ID)
			require.NoError(t, err)
			assert.Empty(t, history.Versions)
		})
	}
}
