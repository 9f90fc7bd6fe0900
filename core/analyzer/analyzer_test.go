package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// memoryCache is an in-process contract.CacheStore.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     []byte
	version   int
	timestamp int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]cacheEntry)}
}

func (m *memoryCache) Get(key string) ([]byte, int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, 0, 0, errors.New("miss")
	}
	return e.value, e.version, e.timestamp, nil
}

func (m *memoryCache) Set(key string, value []byte, version int, timestamp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = cacheEntry{value: value, version: version, timestamp: timestamp}
	return nil
}

func (m *memoryCache) GetStatus() (schema.CacheStatus, error) {
	return schema.CacheStatus{Connected: true}, nil
}

func (m *memoryCache) Close() error { return nil }

func testConfig() contract.AnalyzerConfig {
	cfg := contract.DefaultConfig().Analyzer
	cfg.Workers = 2
	cfg.MinDuplicateTokens = 20
	return cfg
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func element(fa *schema.FileAnalysis, name string) *schema.CodeElement {
	for i := range fa.Elements {
		if fa.Elements[i].Name == name {
			return &fa.Elements[i]
		}
	}
	return nil
}

const storeSource = `package store

import "fmt"

type Store struct{}

func (s *Store) Get(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	return key, nil
}

func lookup(s *Store) {
	s.Get("a")
	s.Get("b")
}
`

func TestAnalyzeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/ws/store.go": storeSource})

	a := New(testConfig(), fs)
	fa, err := a.AnalyzeFile(context.Background(), "/ws/store.go")
	require.NoError(t, err)

	assert.Equal(t, "go", fa.Language)
	assert.Equal(t, "/ws/store.go", fa.FilePath)
	assert.GreaterOrEqual(t, fa.ComplexityScore, 1)
	assert.Equal(t, 17, fa.LineCount)

	get := element(fa, "Get")
	require.NotNil(t, get)
	assert.Equal(t, schema.MethodElement, get.Type)
	assert.Equal(t, "/ws/store.go:7:method:Get", get.ID)
	assert.Equal(t, 2, get.ReferenceCount)
	assert.GreaterOrEqual(t, get.Complexity, 2)
	assert.NotEmpty(t, get.Normalized)

	require.NotNil(t, element(fa, "Store"))
	assert.Equal(t, schema.ClassElement, element(fa, "Store").Type)
	assert.Equal(t, schema.ImportElement, element(fa, "fmt").Type)

	var imports, calls int
	for _, e := range fa.DependencyEdges {
		switch e.Kind {
		case schema.ImportEdge:
			imports++
			assert.Equal(t, fa.ModuleID(), e.From)
		case schema.CallEdge:
			calls++
		}
	}
	assert.Equal(t, 1, imports)
	assert.Equal(t, 3, calls)
	assert.Len(t, fa.References, 3)
}

func TestAnalyzeFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ws/notes.md":  "# notes",
		"/ws/big.go":    "package big\n\nvar payload = \"" + string(make([]byte, 64)) + "\"\n",
		"/ws/broken.go": "package broken\n\nfunc oops( {\n",
		"/ws/ok.py":     "def ok():\n    return 1\n",
	})

	tests := []struct {
		name   string
		path   string
		mutate func(*contract.AnalyzerConfig)
		want   error
	}{
		{name: "unsupported", path: "/ws/notes.md", want: schema.ErrUnsupportedLanguage},
		{name: "not allow-listed", path: "/ws/ok.py", mutate: func(c *contract.AnalyzerConfig) { c.Languages = []string{"go"} }, want: schema.ErrUnsupportedLanguage},
		{name: "too large", path: "/ws/big.go", mutate: func(c *contract.AnalyzerConfig) { c.MaxFileSize = 32 }, want: schema.ErrFileTooLarge},
		{name: "malformed", path: "/ws/broken.go", want: schema.ErrParseFailure},
		{name: "timeout", path: "/ws/ok.py", mutate: func(c *contract.AnalyzerConfig) { c.ParseTimeout = time.Nanosecond }, want: schema.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, err := New(cfg, fs).AnalyzeFile(context.Background(), tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(testConfig(), fs).AnalyzeFile(context.Background(), "/ws/missing.go")
	assert.Equal(t, schema.Unreadable, schema.CodeOf(err))
}

func TestAnalyzeFileCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/ws/store.go": storeSource})
	cache := newMemoryCache()
	a := New(testConfig(), fs, WithCache(cache))

	first, err := a.AnalyzeFile(context.Background(), "/ws/store.go")
	require.NoError(t, err)
	second, err := a.AnalyzeFile(context.Background(), "/ws/store.go")
	require.NoError(t, err)

	assert.Equal(t, len(first.Elements), len(second.Elements))
	assert.Equal(t, first.ComplexityScore, second.ComplexityScore)
	stats := a.GetStatistics()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)

	a.Invalidate("/ws/store.go")
	_, err = a.AnalyzeFile(context.Background(), "/ws/store.go")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.GetStatistics().CacheMisses)

	// Stale entries are ignored
	cfg := testConfig()
	cfg.CacheTTL = time.Millisecond
	for k, e := range cache.entries {
		e.timestamp = time.Now().Add(-time.Hour).Unix()
		cache.entries[k] = e
	}
	stale := New(cfg, fs, WithCache(cache))
	_, err = stale.AnalyzeFile(context.Background(), "/ws/store.go")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stale.GetStatistics().CacheHits)
}

const sumBody = `(xs []int) int {
	total := 0
	for _, x := range xs {
		if x > 0 {
			total += x
		}
	}
	return total
}
`

func TestAnalyzeWorkspace(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/ws/util/util.go":   "package util\n\nfunc Helper() int { return 1 }\n",
		"/ws/math/a.go":      "package math\n\nfunc SumA" + sumBody,
		"/ws/math/b.go":      "package math\n\nfunc SumB" + sumBody,
		"/ws/broken.go":      "package broken\n\nfunc oops( {\n",
		"/ws/README.md":      "# readme",
		"/ws/vendor/x/x.go":  "package x\n",
		"/ws/app/models.py":  "class Model:\n    pass\n",
		"/ws/app/service.py": "from app import models\nimport app.models\n\ndef run():\n    return models.Model()\n",
	}
	for i := range 5 {
		files[fmt.Sprintf("/ws/cmd/use%d.go", i)] = fmt.Sprintf(
			"package cmd\n\nimport \"example.com/ws/util\"\n\nfunc use%d() int { return util.Helper() }\n", i)
	}
	writeFiles(t, fs, files)

	a := New(testConfig(), fs)
	ws, err := a.AnalyzeWorkspace(context.Background(), "/ws")
	require.NoError(t, err)

	assert.Len(t, ws.Files, 10)
	require.Len(t, ws.Failures, 1)
	assert.Equal(t, "broken.go", ws.Failures[0].Path)
	assert.Equal(t, schema.ParseFailure, ws.Failures[0].Reason)
	for _, fa := range ws.Files {
		assert.GreaterOrEqual(t, fa.ComplexityScore, 1, fa.FilePath)
	}
	assert.Equal(t, "go", ws.PrimaryLanguage())

	var util *schema.FileAnalysis
	for i := range ws.Files {
		if ws.Files[i].FilePath == "util/util.go" {
			util = &ws.Files[i]
		}
	}
	require.NotNil(t, util)
	helper := element(util, "Helper")
	require.NotNil(t, helper)
	assert.Equal(t, 5, helper.ReferenceCount)
	assert.True(t, helper.IsHotspot)
	assert.True(t, util.IsHotspot)
	assert.Equal(t, 5, ws.Graph.InDegree(util.ModuleID()))
	require.NotEmpty(t, ws.Hotspots)
	assert.Equal(t, helper.ID, ws.Hotspots[0].ElementID)

	require.Len(t, ws.DuplicateGroups, 1)
	dup := ws.DuplicateGroups[0]
	assert.Equal(t, "dup-1", dup.ID)
	assert.Equal(t, []string{"math/a.go:3:function:SumA", "math/b.go:3:function:SumB"}, dup.ElementIDs)
	assert.GreaterOrEqual(t, dup.Similarity, 0.85)

	assert.Contains(t, ws.Graph.Reachable("module:app/service.py"), "module:app/models.py")
	assert.Empty(t, ws.Graph.Cycles())

	stats := a.GetStatistics()
	assert.Equal(t, 10, stats.FilesAnalyzed)
	assert.Equal(t, 8, stats.ByLanguage["go"])
	assert.Equal(t, 2, stats.ByLanguage["python"])
	assert.Equal(t, 1, stats.DuplicateGroups)
	assert.GreaterOrEqual(t, stats.HotspotCount, 1)
	assert.GreaterOrEqual(t, stats.AverageComplexity, 1.0)
	assert.Same(t, ws.Graph, a.Graph())
}

func TestAnalyzeWorkspaceImportCycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ws/a.py": "import b\n",
		"/ws/b.py": "import a\n",
	})
	ws, err := New(testConfig(), fs).AnalyzeWorkspace(context.Background(), "/ws")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"module:a.py", "module:b.py"}}, ws.Graph.Cycles())
}

func TestAnalyzeWorkspaceCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/ws/a.go": "package a\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ws, err := New(testConfig(), fs).AnalyzeWorkspace(ctx, "/ws")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, ws)
	assert.Empty(t, ws.Files)
	assert.NotNil(t, ws.Graph)
}
