package contract

import (
	"testing"
	"time"

	"github.com/huangsam/codeintel/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validRawInput returns raw input mirroring the viper defaults registered by the CLI.
func validRawInput() *ConfigRawInput {
	return &ConfigRawInput{
		PathStr:             ".",
		StoragePath:         ".codeintel",
		Output:              "text",
		Limit:               10,
		Workers:             4,
		Color:               "yes",
		LogLevel:            "warn",
		CacheBackend:        "none",
		MaxFileSize:         DefaultMaxFileSize,
		ParseTimeout:        "5s",
		CacheTTL:            "24h",
		HotspotThreshold:    5,
		DuplicateThreshold:  0.85,
		MinDuplicateTokens:  30,
		MaxConcurrentFiles:  8,
		MinFrequency:        2,
		MinScore:            0.1,
		MaxSnippets:         1000,
		ContextWindow:       10,
		FrequencySaturation: 10,
		ContextSaturation:   3,
		MaxPatterns:         500,
		MaxSteps:            20,
		DefaultApproval:     "pending",
		AutoSave:            true,
		AutoSaveInterval:    "30s",
	}
}

func TestProcessAndValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*ConfigRawInput)
		expectError string
	}{
		{name: "valid defaults"},
		{name: "zero limit", mutate: func(in *ConfigRawInput) { in.Limit = 0 }, expectError: "limit must be greater than 0"},
		{name: "zero workers", mutate: func(in *ConfigRawInput) { in.Workers = 0 }, expectError: "workers must be greater than 0"},
		{name: "bad output", mutate: func(in *ConfigRawInput) { in.Output = "xml" }, expectError: "invalid output format"},
		{name: "bad color", mutate: func(in *ConfigRawInput) { in.Color = "maybe" }, expectError: "invalid --color value"},
		{name: "bad timeout", mutate: func(in *ConfigRawInput) { in.ParseTimeout = "soon" }, expectError: "invalid parse-timeout"},
		{name: "negative ttl", mutate: func(in *ConfigRawInput) { in.CacheTTL = "-1h" }, expectError: "cache-ttl must be greater than 0"},
		{name: "threshold above one", mutate: func(in *ConfigRawInput) { in.DuplicateThreshold = 1.5 }, expectError: "duplicate-threshold"},
		{name: "bad snippet type", mutate: func(in *ConfigRawInput) { in.SnippetTypes = "function_call,loops" }, expectError: "invalid snippet type 'loops'"},
		{name: "bad approval", mutate: func(in *ConfigRawInput) { in.DefaultApproval = "maybe" }, expectError: "invalid default-approval"},
		{name: "empty storage", mutate: func(in *ConfigRawInput) { in.StoragePath = " " }, expectError: "storage-path cannot be empty"},
		{name: "bad cache backend", mutate: func(in *ConfigRawInput) { in.CacheBackend = "redis" }, expectError: "invalid cache backend"},
		{
			name:        "mysql without connect",
			mutate:      func(in *ConfigRawInput) { in.CacheBackend = "mysql" },
			expectError: "a connection string is required",
		},
		{
			name: "shared sqlite file",
			mutate: func(in *ConfigRawInput) {
				in.CacheBackend = "sqlite"
				in.HistoryBackend = "sqlite"
				in.CacheDBConnect = "/tmp/same.db"
				in.HistoryDBConnect = "/tmp/same.db"
			},
			expectError: "must use different SQLite database files",
		},
		{
			name: "weights not summing to one",
			mutate: func(in *ConfigRawInput) {
				f := 0.9
				in.Weights.Frequency = &f
			},
			expectError: "custom weights must sum to 1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validRawInput()
			if tt.mutate != nil {
				tt.mutate(input)
			}
			cfg := &Config{}
			err := ProcessAndValidate(cfg, input)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProcessAndValidatePopulatesSections(t *testing.T) {
	input := validRawInput()
	input.Exclude = "fixtures/, *.gen.go"
	input.Languages = "go,python"
	input.SnippetTypes = "function_call, api_usage, function_call"
	input.DefaultApproval = "approved"
	input.HistoryBackend = "sqlite"
	input.HistoryDBConnect = "/tmp/history.db"
	freq, div, ctx := 0.6, 0.2, 0.2
	input.Weights = WeightsRawInput{Frequency: &freq, Diversity: &div, Context: &ctx}
	minFreq := 4
	input.AutoPromote = AutoPromoteRawInput{MinFrequency: &minFreq}

	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))

	assert.Equal(t, 5*time.Second, cfg.Analyzer.ParseTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Analyzer.CacheTTL)
	assert.Equal(t, []string{"go", "python"}, cfg.Analyzer.Languages)
	assert.Contains(t, cfg.Analyzer.Excludes, "fixtures/")
	assert.Contains(t, cfg.Analyzer.Excludes, "*.gen.go")
	assert.Contains(t, cfg.Analyzer.Excludes, "node_modules/")
	assert.Equal(t, cfg.Analyzer.Excludes, cfg.Miner.Excludes)
	assert.Equal(t, []schema.SnippetType{schema.FunctionCallSnippet, schema.APIUsageSnippet}, cfg.Miner.SnippetTypes)
	assert.Equal(t, ScoreWeights{Frequency: 0.6, Diversity: 0.2, Context: 0.2}, cfg.Miner.Weights)
	assert.Equal(t, schema.ApprovedStatus, cfg.Notebook.DefaultApproval)
	assert.Equal(t, 30*time.Second, cfg.Notebook.AutoSaveInterval)
	assert.Equal(t, ".codeintel", cfg.Notebook.StoragePath)
	assert.Equal(t, cfg.Notebook.StoragePath, cfg.Manager.StoragePath)
	assert.Equal(t, 4, cfg.Manager.AutoPromote.MinFrequency)
	assert.Equal(t, DefaultAutoPromoteMinScore, cfg.Manager.AutoPromote.MinScore)
	assert.True(t, cfg.Manager.AutoPromote.Enabled)
	assert.Equal(t, schema.NoneBackend, cfg.CacheBackend)
	assert.Equal(t, schema.SQLiteBackend, cfg.HistoryBackend)
	assert.True(t, cfg.UseColors)
}

func TestDefaultConfigAndClone(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Miner.AllowsType(schema.ConfigurationSnippet))
	assert.InDelta(t, 1.0, cfg.Miner.Weights.Frequency+cfg.Miner.Weights.Diversity+cfg.Miner.Weights.Context, 1e-9)

	clone := cfg.Clone()
	clone.Miner.SnippetTypes = clone.Miner.SnippetTypes[:1]
	clone.Analyzer.Excludes[0] = "changed/"
	assert.Len(t, cfg.Miner.SnippetTypes, len(schema.AllSnippetTypes))
	assert.Equal(t, "node_modules/", cfg.Analyzer.Excludes[0])
	assert.False(t, clone.Miner.AllowsType(schema.ConfigurationSnippet))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud")
	assert.Error(t, err)

	assert.NotNil(t, LoggerOrNop(nil))
}
