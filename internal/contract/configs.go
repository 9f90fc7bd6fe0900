package contract

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/huangsam/codeintel/schema"
)

// Default values for configuration.
const (
	DefaultResultLimit = 25
	MaxResultLimit     = 1000
	DefaultStorageDir  = ".codeintel"

	DefaultMaxFileSize        int64 = 1 << 20
	DefaultParseTimeout             = 5 * time.Second
	DefaultCacheTTL                 = 24 * time.Hour
	DefaultHotspotThreshold         = 5
	DefaultDuplicateThreshold       = 0.85
	DefaultMinDuplicateTokens       = 30

	DefaultMaxConcurrentFiles  = 8
	DefaultMinFrequency        = 2
	DefaultMinScore            = 0.1
	DefaultMaxSnippets         = 1000
	DefaultContextWindow       = 10
	DefaultFrequencySaturation = 10.0
	DefaultContextSaturation   = 3.0

	DefaultMaxPatterns      = 500
	DefaultMaxSteps         = 20
	DefaultAutoSaveInterval = 30 * time.Second

	DefaultAutoPromoteMinFrequency = 10
	DefaultAutoPromoteMinScore     = 0.8
	DefaultAutoPromoteMinContexts  = 3
)

// Default score weights; they must sum to 1.0.
const (
	DefaultFrequencyWeight = 0.5
	DefaultDiversityWeight = 0.3
	DefaultContextWeight   = 0.2
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// DefaultExcludes are skipped by every workspace walk.
var DefaultExcludes = []string{
	"node_modules/", "vendor/", "dist/", "build/", "out/", "target/", "bin/", "__pycache__/",
	".min.js", ".min.css", ".pb.go", "_generated.go",
	"Cargo.lock", "go.sum", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", "uv.lock",
}

// AnalyzerConfig holds the settings of the structural analyzer.
type AnalyzerConfig struct {
	Languages          []string // Allow-listed language names; empty means every registered language
	Excludes           []string
	Workers            int
	MaxFileSize        int64
	ParseTimeout       time.Duration
	CacheTTL           time.Duration
	HotspotThreshold   int
	DuplicateThreshold float64
	MinDuplicateTokens int
}

// ScoreWeights are the tunable weights of the snippet score.
type ScoreWeights struct {
	Frequency float64
	Diversity float64
	Context   float64
}

// MinerConfig holds the settings of the snippet miner.
type MinerConfig struct {
	Languages           []string
	Excludes            []string
	SnippetTypes        []schema.SnippetType
	MaxConcurrentFiles  int
	MaxFileSize         int64
	ParseTimeout        time.Duration
	MinFrequency        int
	MinScore            float64
	MaxSnippets         int
	ContextWindow       int
	Weights             ScoreWeights
	FrequencySaturation float64 // Frequency at which norm(frequency) reaches 1
	ContextSaturation   float64 // Distinct contexts at which norm(contexts) reaches 1
}

// AllowsType reports whether the miner should extract the given snippet type.
func (c MinerConfig) AllowsType(t schema.SnippetType) bool {
	return len(c.SnippetTypes) == 0 || slices.Contains(c.SnippetTypes, t)
}

// NotebookConfig holds the settings of the pattern notebook.
type NotebookConfig struct {
	StoragePath      string
	MaxPatterns      int
	MaxSteps         int
	DefaultApproval  schema.ApprovalStatus
	AutoSave         bool
	AutoSaveInterval time.Duration
}

// AutoPromoteConfig holds the auto-promotion predicate thresholds.
type AutoPromoteConfig struct {
	Enabled      bool
	MinFrequency int
	MinScore     float64
	MinContexts  int
}

// ManagerConfig holds the settings of the orchestrating manager.
type ManagerConfig struct {
	StoragePath string
	AutoPromote AutoPromoteConfig
}

// Config holds the runtime configuration for the engine and the CLI.
// This struct remains the "final, validated" config.
type Config struct {
	Path        string // Workspace root or file given on the command line
	ResultLimit int
	Output      schema.OutputMode
	OutputFile  string
	UseColors   bool
	LogLevel    string

	Analyzer AnalyzerConfig
	Miner    MinerConfig
	Notebook NotebookConfig
	Manager  ManagerConfig

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	HistoryBackend   schema.DatabaseBackend
	HistoryDBConnect string // Please use env var as this is plaintext
}

// WeightsRawInput holds custom score weights from the YAML config file.
type WeightsRawInput struct {
	Frequency *float64 `mapstructure:"frequency"`
	Diversity *float64 `mapstructure:"diversity"`
	Context   *float64 `mapstructure:"context"`
}

// AutoPromoteRawInput holds auto-promotion thresholds from the YAML config file.
type AutoPromoteRawInput struct {
	Enabled      *bool    `mapstructure:"enabled"`
	MinFrequency *int     `mapstructure:"min-frequency"`
	MinScore     *float64 `mapstructure:"min-score"`
	MinContexts  *int     `mapstructure:"min-contexts"`
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// This is set manually from positional args, so no tag
	PathStr string

	// --- Fields from rootCmd.PersistentFlags() ---
	StoragePath      string `mapstructure:"storage-path"`
	OutputFile       string `mapstructure:"output-file"`
	Output           string `mapstructure:"output"`
	Limit            int    `mapstructure:"limit"`
	Workers          int    `mapstructure:"workers"`
	Exclude          string `mapstructure:"exclude"`
	Languages        string `mapstructure:"languages"`
	Color            string `mapstructure:"color"`
	LogLevel         string `mapstructure:"log-level"`
	CacheBackend     string `mapstructure:"cache-backend"`
	CacheDBConnect   string `mapstructure:"cache-db-connect"`
	HistoryBackend   string `mapstructure:"history-backend"`
	HistoryDBConnect string `mapstructure:"history-db-connect"`

	// --- Analyzer settings ---
	MaxFileSize        int64   `mapstructure:"max-file-size"`
	ParseTimeout       string  `mapstructure:"parse-timeout"`
	CacheTTL           string  `mapstructure:"cache-ttl"`
	HotspotThreshold   int     `mapstructure:"hotspot-threshold"`
	DuplicateThreshold float64 `mapstructure:"duplicate-threshold"`
	MinDuplicateTokens int     `mapstructure:"min-duplicate-tokens"`

	// --- Miner settings ---
	MaxConcurrentFiles  int     `mapstructure:"max-concurrent-files"`
	MinFrequency        int     `mapstructure:"min-frequency"`
	MinScore            float64 `mapstructure:"min-score"`
	MaxSnippets         int     `mapstructure:"max-snippets"`
	ContextWindow       int     `mapstructure:"context-window"`
	SnippetTypes        string  `mapstructure:"snippet-types"`
	FrequencySaturation float64 `mapstructure:"frequency-saturation"`
	ContextSaturation   float64 `mapstructure:"context-saturation"`

	// --- Notebook settings ---
	MaxPatterns      int    `mapstructure:"max-patterns"`
	MaxSteps         int    `mapstructure:"max-steps"`
	DefaultApproval  string `mapstructure:"default-approval"`
	AutoSave         bool   `mapstructure:"auto-save"`
	AutoSaveInterval string `mapstructure:"auto-save-interval"`

	// --- Config file only ---
	Weights     WeightsRawInput     `mapstructure:"weights"`
	AutoPromote AutoPromoteRawInput `mapstructure:"auto-promote"`
}

// DefaultConfig returns a Config populated with defaults. Library callers
// and tests start from it instead of going through viper.
func DefaultConfig() *Config {
	storage := DefaultStorageDir
	return &Config{
		ResultLimit:    DefaultResultLimit,
		Output:         schema.TextOut,
		LogLevel:       DefaultLogLevel,
		CacheBackend:   schema.NoneBackend,
		HistoryBackend: schema.NoneBackend,
		Analyzer: AnalyzerConfig{
			Excludes:           slices.Clone(DefaultExcludes),
			Workers:            DefaultWorkers,
			MaxFileSize:        DefaultMaxFileSize,
			ParseTimeout:       DefaultParseTimeout,
			CacheTTL:           DefaultCacheTTL,
			HotspotThreshold:   DefaultHotspotThreshold,
			DuplicateThreshold: DefaultDuplicateThreshold,
			MinDuplicateTokens: DefaultMinDuplicateTokens,
		},
		Miner: MinerConfig{
			Excludes:            slices.Clone(DefaultExcludes),
			SnippetTypes:        slices.Clone(schema.AllSnippetTypes),
			MaxConcurrentFiles:  DefaultMaxConcurrentFiles,
			MaxFileSize:         DefaultMaxFileSize,
			ParseTimeout:        DefaultParseTimeout,
			MinFrequency:        DefaultMinFrequency,
			MinScore:            DefaultMinScore,
			MaxSnippets:         DefaultMaxSnippets,
			ContextWindow:       DefaultContextWindow,
			Weights:             ScoreWeights{Frequency: DefaultFrequencyWeight, Diversity: DefaultDiversityWeight, Context: DefaultContextWeight},
			FrequencySaturation: DefaultFrequencySaturation,
			ContextSaturation:   DefaultContextSaturation,
		},
		Notebook: NotebookConfig{
			StoragePath:      storage,
			MaxPatterns:      DefaultMaxPatterns,
			MaxSteps:         DefaultMaxSteps,
			DefaultApproval:  schema.PendingStatus,
			AutoSave:         true,
			AutoSaveInterval: DefaultAutoSaveInterval,
		},
		Manager: ManagerConfig{
			StoragePath: storage,
			AutoPromote: AutoPromoteConfig{
				Enabled:      true,
				MinFrequency: DefaultAutoPromoteMinFrequency,
				MinScore:     DefaultAutoPromoteMinScore,
				MinContexts:  DefaultAutoPromoteMinContexts,
			},
		},
	}
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Analyzer.Languages = slices.Clone(c.Analyzer.Languages)
	clone.Analyzer.Excludes = slices.Clone(c.Analyzer.Excludes)
	clone.Miner.Languages = slices.Clone(c.Miner.Languages)
	clone.Miner.Excludes = slices.Clone(c.Miner.Excludes)
	clone.Miner.SnippetTypes = slices.Clone(c.Miner.SnippetTypes)
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processAnalyzerInputs(cfg, input); err != nil {
		return err
	}
	if err := processMinerInputs(cfg, input); err != nil {
		return err
	}
	if err := processNotebookInputs(cfg, input); err != nil {
		return err
	}
	if err := processAutoPromote(cfg, input); err != nil {
		return err
	}
	return validateBackendConfigs(cfg, input)
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates cache and history backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	cfg.HistoryBackend = schema.DatabaseBackend(strings.ToLower(input.HistoryBackend))
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = schema.NoneBackend
		return nil
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.HistoryBackend]; !ok {
		return fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", input.HistoryBackend)
	}
	cfg.HistoryDBConnect = input.HistoryDBConnect
	if err := ValidateDatabaseConnectionString(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return err
	}

	// Cache and history must not share one SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.HistoryBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		historyDBPath := cfg.HistoryDBConnect
		if historyDBPath == "" {
			historyDBPath = GetHistoryDBFilePath()
		}
		if cacheDBPath == historyDBPath {
			return fmt.Errorf("cache and history storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates the CLI-level fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.Path = input.PathStr
	cfg.OutputFile = input.OutputFile
	cfg.LogLevel = input.LogLevel
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Limit <= 0 || input.Limit > MaxResultLimit {
		return fmt.Errorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.Limit)
	}
	cfg.ResultLimit = input.Limit

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}

	storage := strings.TrimSpace(input.StoragePath)
	if storage == "" {
		return fmt.Errorf("storage-path cannot be empty")
	}
	storage = filepath.Clean(storage)
	cfg.Notebook.StoragePath = storage
	cfg.Manager.StoragePath = storage
	return nil
}

// processAnalyzerInputs fills the analyzer section.
func processAnalyzerInputs(cfg *Config, input *ConfigRawInput) error {
	a := &cfg.Analyzer

	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	a.Workers = input.Workers

	if input.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be greater than 0 (received %d)", input.MaxFileSize)
	}
	a.MaxFileSize = input.MaxFileSize

	timeout, err := parsePositiveDuration("parse-timeout", input.ParseTimeout)
	if err != nil {
		return err
	}
	a.ParseTimeout = timeout

	ttl, err := parsePositiveDuration("cache-ttl", input.CacheTTL)
	if err != nil {
		return err
	}
	a.CacheTTL = ttl

	if input.HotspotThreshold < 1 {
		return fmt.Errorf("hotspot-threshold must be at least 1 (received %d)", input.HotspotThreshold)
	}
	a.HotspotThreshold = input.HotspotThreshold

	if input.DuplicateThreshold <= 0 || input.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate-threshold must be in (0, 1] (received %.2f)", input.DuplicateThreshold)
	}
	a.DuplicateThreshold = input.DuplicateThreshold

	if input.MinDuplicateTokens < 1 {
		return fmt.Errorf("min-duplicate-tokens must be at least 1 (received %d)", input.MinDuplicateTokens)
	}
	a.MinDuplicateTokens = input.MinDuplicateTokens

	a.Languages = splitList(input.Languages)
	a.Excludes = append(slices.Clone(DefaultExcludes), splitList(input.Exclude)...)
	return nil
}

// processMinerInputs fills the miner section.
func processMinerInputs(cfg *Config, input *ConfigRawInput) error {
	m := &cfg.Miner
	m.Languages = slices.Clone(cfg.Analyzer.Languages)
	m.Excludes = slices.Clone(cfg.Analyzer.Excludes)
	m.MaxFileSize = cfg.Analyzer.MaxFileSize
	m.ParseTimeout = cfg.Analyzer.ParseTimeout

	if input.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max-concurrent-files must be greater than 0 (received %d)", input.MaxConcurrentFiles)
	}
	m.MaxConcurrentFiles = input.MaxConcurrentFiles

	if input.MinFrequency < 0 {
		return fmt.Errorf("min-frequency cannot be negative (received %d)", input.MinFrequency)
	}
	m.MinFrequency = input.MinFrequency

	if input.MinScore < 0 || input.MinScore > 1 {
		return fmt.Errorf("min-score must be in [0, 1] (received %.2f)", input.MinScore)
	}
	m.MinScore = input.MinScore

	if input.MaxSnippets <= 0 {
		return fmt.Errorf("max-snippets must be greater than 0 (received %d)", input.MaxSnippets)
	}
	m.MaxSnippets = input.MaxSnippets

	if input.ContextWindow <= 0 {
		return fmt.Errorf("context-window must be greater than 0 (received %d)", input.ContextWindow)
	}
	m.ContextWindow = input.ContextWindow

	if input.FrequencySaturation <= 1 {
		return fmt.Errorf("frequency-saturation must be greater than 1 (received %.2f)", input.FrequencySaturation)
	}
	m.FrequencySaturation = input.FrequencySaturation

	if input.ContextSaturation < 1 {
		return fmt.Errorf("context-saturation must be at least 1 (received %.2f)", input.ContextSaturation)
	}
	m.ContextSaturation = input.ContextSaturation

	types, err := parseSnippetTypes(input.SnippetTypes)
	if err != nil {
		return err
	}
	m.SnippetTypes = types

	weights, err := ProcessWeightsRawInput(input.Weights)
	if err != nil {
		return err
	}
	m.Weights = weights
	return nil
}

// ProcessWeightsRawInput merges custom weights over the defaults and checks they sum to 1.0.
func ProcessWeightsRawInput(raw WeightsRawInput) (ScoreWeights, error) {
	w := ScoreWeights{Frequency: DefaultFrequencyWeight, Diversity: DefaultDiversityWeight, Context: DefaultContextWeight}
	if raw.Frequency == nil && raw.Diversity == nil && raw.Context == nil {
		return w, nil
	}
	if raw.Frequency != nil {
		w.Frequency = *raw.Frequency
	}
	if raw.Diversity != nil {
		w.Diversity = *raw.Diversity
	}
	if raw.Context != nil {
		w.Context = *raw.Context
	}
	for name, v := range map[string]float64{"frequency": w.Frequency, "diversity": w.Diversity, "context": w.Context} {
		if v < 0 {
			return ScoreWeights{}, fmt.Errorf("weight %s cannot be negative (received %.3f)", name, v)
		}
	}
	sum := w.Frequency + w.Diversity + w.Context
	if sum < 0.999 || sum > 1.001 {
		return ScoreWeights{}, fmt.Errorf("custom weights must sum to 1.0, got %.3f", sum)
	}
	return w, nil
}

// processNotebookInputs fills the notebook section.
func processNotebookInputs(cfg *Config, input *ConfigRawInput) error {
	n := &cfg.Notebook

	if input.MaxPatterns <= 0 {
		return fmt.Errorf("max-patterns must be greater than 0 (received %d)", input.MaxPatterns)
	}
	n.MaxPatterns = input.MaxPatterns

	if input.MaxSteps <= 0 {
		return fmt.Errorf("max-steps must be greater than 0 (received %d)", input.MaxSteps)
	}
	n.MaxSteps = input.MaxSteps

	n.DefaultApproval = schema.ApprovalStatus(strings.ToUpper(strings.TrimSpace(input.DefaultApproval)))
	if n.DefaultApproval == "" {
		n.DefaultApproval = schema.PendingStatus
	}
	if _, ok := schema.ValidApprovalStatuses[n.DefaultApproval]; !ok {
		return fmt.Errorf("invalid default-approval '%s'. must be pending, approved, rejected", input.DefaultApproval)
	}

	n.AutoSave = input.AutoSave
	if n.AutoSave {
		interval, err := parsePositiveDuration("auto-save-interval", input.AutoSaveInterval)
		if err != nil {
			return err
		}
		n.AutoSaveInterval = interval
	}
	return nil
}

// processAutoPromote merges auto-promotion thresholds from the config file over the defaults.
func processAutoPromote(cfg *Config, input *ConfigRawInput) error {
	ap := AutoPromoteConfig{
		Enabled:      true,
		MinFrequency: DefaultAutoPromoteMinFrequency,
		MinScore:     DefaultAutoPromoteMinScore,
		MinContexts:  DefaultAutoPromoteMinContexts,
	}
	raw := input.AutoPromote
	if raw.Enabled != nil {
		ap.Enabled = *raw.Enabled
	}
	if raw.MinFrequency != nil {
		ap.MinFrequency = *raw.MinFrequency
	}
	if raw.MinScore != nil {
		ap.MinScore = *raw.MinScore
	}
	if raw.MinContexts != nil {
		ap.MinContexts = *raw.MinContexts
	}
	if ap.MinScore < 0 || ap.MinScore > 1 {
		return fmt.Errorf("auto-promote min-score must be in [0, 1] (received %.2f)", ap.MinScore)
	}
	if ap.MinFrequency < 0 || ap.MinContexts < 0 {
		return fmt.Errorf("auto-promote thresholds cannot be negative")
	}
	cfg.Manager.AutoPromote = ap
	return nil
}

// parseSnippetTypes parses a comma-separated list of snippet types. Empty means all.
func parseSnippetTypes(s string) ([]schema.SnippetType, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return slices.Clone(schema.AllSnippetTypes), nil
	}
	types := make([]schema.SnippetType, 0, len(parts))
	for _, p := range parts {
		t := schema.SnippetType(strings.ToLower(p))
		if _, ok := schema.ValidSnippetTypes[t]; !ok {
			return nil, fmt.Errorf("invalid snippet type '%s'", p)
		}
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	return types, nil
}

// parsePositiveDuration parses a Go duration string that must be greater than zero.
func parsePositiveDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", name, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0 (received %s)", name, s)
	}
	return d, nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
