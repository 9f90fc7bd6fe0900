//go:build basic

// Package integration contains end-to-end tests for the codeintel CLI.
// These tests are excluded from normal test runs due to build tags.
// To run these tests: go test -tags basic ./integration
package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huangsam/codeintel/schema"
)

// TestSnippetToPatternWorkflow mines a workspace, promotes the top snippet and approves it.
func TestSnippetToPatternWorkflow(t *testing.T) {
	workspace := writeWorkspace(t)
	state := t.TempDir()
	env := []string{
		"CODEINTEL_STORAGE_PATH=" + filepath.Join(state, "store"),
		"CODEINTEL_CACHE_BACKEND=sqlite",
		"CODEINTEL_CACHE_DB_CONNECT=" + filepath.Join(state, "cache.db"),
		"CODEINTEL_HISTORY_BACKEND=sqlite",
		"CODEINTEL_HISTORY_DB_CONNECT=" + filepath.Join(state, "history.db"),
		"CODEINTEL_COLOR=no",
		"CODEINTEL_LOG_LEVEL=error",
	}

	out, err := runCommand(t, env, "analyze", workspace, "--output", "json")
	require.NoError(t, err)
	var report schema.WorkspaceReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "python", report.PrimaryLanguage)
	assert.Positive(t, report.RunID)

	out, err = runCommand(t, env, "snippets", "list", "--language", "python", "--output", "json")
	require.NoError(t, err)
	var snippets []schema.CodeSnippet
	require.NoError(t, json.Unmarshal([]byte(out), &snippets))
	require.NotEmpty(t, snippets)

	var foo schema.CodeSnippet
	for _, s := range snippets {
		if s.Type == schema.FunctionCallSnippet && strings.HasPrefix(s.Code, "foo(") {
			foo = s
		}
	}
	require.NotEmpty(t, foo.ID, "foo() snippet not mined")
	assert.Equal(t, 5, foo.Frequency)

	out, err = runCommand(t, env, "snippets", "promote", foo.ID, "--actor", "alice", "--output", "json")
	require.NoError(t, err)
	var promoted []schema.FunctionPattern
	require.NoError(t, json.Unmarshal([]byte(out), &promoted))
	require.Len(t, promoted, 1)
	assert.Equal(t, schema.PendingStatus, promoted[0].ApprovalStatus)

	_, err = runCommand(t, env, "patterns", "approve", promoted[0].ID, "--actor", "bob")
	require.NoError(t, err)

	out, err = runCommand(t, env, "patterns", "show", promoted[0].ID, "--output", "json")
	require.NoError(t, err)
	var record schema.PatternRecord
	require.NoError(t, json.Unmarshal([]byte(out), &record))
	assert.Equal(t, schema.ApprovedStatus, record.Current.ApprovalStatus)
	assert.Equal(t, 1, record.Current.Version)

	// A second analyze recommends the approved pattern
	out, err = runCommand(t, env, "analyze", workspace, "--output", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, promoted[0].ID, report.Recommendations[0].ID)

	_, err = runCommand(t, env, "history", "export", "--output-file", filepath.Join(state, "runs"))
	require.NoError(t, err)
	for _, suffix := range []string{".runs.parquet", ".file_metrics.parquet"} {
		_, err := os.Stat(filepath.Join(state, "runs"+suffix))
		assert.NoError(t, err, suffix)
	}

	out, err = runCommand(t, env, "history", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite")
}

// TestInvalidConfigFails checks validation errors exit non-zero with a message.
func TestInvalidConfigFails(t *testing.T) {
	out, err := runCommand(t, []string{"CODEINTEL_CACHE_BACKEND=none"}, "analyze", writeWorkspace(t), "--workers", "0")
	require.Error(t, err)
	assert.Contains(t, out, "workers must be greater than 0")
}
