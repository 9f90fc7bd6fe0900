package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/huangsam/codeintel/core"
	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/internal/iocache"
	"github.com/huangsam/codeintel/internal/outwriter"
	"github.com/huangsam/codeintel/schema"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = contract.DefaultConfig()

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// Engine state built by sharedSetup and released by sharedTeardown.
var (
	logger  *zap.Logger
	stores  *iocache.CacheStoreManager
	engine  *core.Manager
	writer  = outwriter.NewOutWriter()
	started bool
)

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:   "codeintel",
	Short: "Mine recurring code and curate it into reviewable patterns.",
	Long: `Codeintel parses a workspace, finds the fragments your team writes over and over,
and turns the best of them into versioned patterns that can be reviewed and suggested in context.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setConfigFile()

	// Set environment variable prefix
	viper.SetEnvPrefix("CODEINTEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // Read in environment variables that match

	// Set defaults in Viper
	viper.SetDefault("storage-path", contract.DefaultStorageDir)
	viper.SetDefault("limit", contract.DefaultResultLimit)
	viper.SetDefault("workers", contract.DefaultWorkers)
	viper.SetDefault("output", schema.TextOut)
	viper.SetDefault("color", "yes")
	viper.SetDefault("log-level", contract.DefaultLogLevel)
	viper.SetDefault("cache-backend", schema.SQLiteBackend)
	viper.SetDefault("cache-db-connect", "")
	viper.SetDefault("history-backend", "")
	viper.SetDefault("history-db-connect", "")

	viper.SetDefault("max-file-size", contract.DefaultMaxFileSize)
	viper.SetDefault("parse-timeout", contract.DefaultParseTimeout.String())
	viper.SetDefault("cache-ttl", contract.DefaultCacheTTL.String())
	viper.SetDefault("hotspot-threshold", contract.DefaultHotspotThreshold)
	viper.SetDefault("duplicate-threshold", contract.DefaultDuplicateThreshold)
	viper.SetDefault("min-duplicate-tokens", contract.DefaultMinDuplicateTokens)

	viper.SetDefault("max-concurrent-files", contract.DefaultMaxConcurrentFiles)
	viper.SetDefault("min-frequency", contract.DefaultMinFrequency)
	viper.SetDefault("min-score", contract.DefaultMinScore)
	viper.SetDefault("max-snippets", contract.DefaultMaxSnippets)
	viper.SetDefault("context-window", contract.DefaultContextWindow)
	viper.SetDefault("frequency-saturation", contract.DefaultFrequencySaturation)
	viper.SetDefault("context-saturation", contract.DefaultContextSaturation)

	viper.SetDefault("max-patterns", contract.DefaultMaxPatterns)
	viper.SetDefault("max-steps", contract.DefaultMaxSteps)
	viper.SetDefault("default-approval", schema.PendingStatus)
	viper.SetDefault("auto-save", true)
	viper.SetDefault("auto-save-interval", contract.DefaultAutoSaveInterval.String())
}

// setConfigFile points viper at --config or the default .codeintel.yaml locations.
func setConfigFile() {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		return
	}
	viper.SetConfigName(".codeintel") // Name of config file (without extension)
	viper.SetConfigType("yaml")       // We'll use YAML format
	viper.AddConfigPath(".")          // Look in the current directory
	viper.AddConfigPath("$HOME")      // Look in the home directory
}

// loadConfigFile reads the config file when one exists.
func loadConfigFile() error {
	setConfigFile()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}
	return nil
}

// resolveConfig merges file, env and flags into cfg. The first positional
// argument, when present, is the workspace path.
func resolveConfig(args []string) error {
	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := loadConfigFile(); err != nil {
		return err
	}

	// 2. Unmarshal all resolved values from Viper into our raw input struct.
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Handle positional arguments (which Viper doesn't do).
	if len(args) >= 1 {
		input.PathStr = args[0]
	} else {
		input.PathStr = "."
	}

	// 4. Run all validation and complex parsing.
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	color.NoColor = color.NoColor || !cfg.UseColors
	return nil
}

// sharedSetup validates config, opens the stores and loads the engine.
func sharedSetup(ctx context.Context, _ *cobra.Command, args []string) error {
	if err := resolveConfig(args); err != nil {
		return err
	}

	var err error
	logger, err = contract.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	stores, err = iocache.NewCacheStoreManager(iocache.Options{
		CacheBackend:     cfg.CacheBackend,
		CacheConnStr:     cfg.CacheDBConnect,
		HistoryBackend:   cfg.HistoryBackend,
		HistoryConnStr:   cfg.HistoryDBConnect,
		CompressAnalysis: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}

	engine = core.NewManager(cfg, core.Deps{Cache: stores, Logger: logger})
	if err := engine.Initialize(ctx); err != nil {
		_ = stores.Close()
		return fmt.Errorf("failed to load storage at %s: %w", cfg.Manager.StoragePath, err)
	}
	started = true
	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
// The first positional argument is the workspace or file path.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// storeSetupWrapper is sharedSetup for commands whose arguments are ids or
// export paths rather than a workspace.
func storeSetupWrapper(cmd *cobra.Command, _ []string) error {
	return sharedSetup(rootCtx, cmd, nil)
}

// sharedTeardown flushes the engine and closes the stores.
func sharedTeardown() error {
	if !started {
		return nil
	}
	started = false
	err := errors.Join(engine.Close(), stores.Close())
	_ = logger.Sync()
	return err
}

// withEngine runs fn and always tears the engine down afterwards,
// so patterns and snippets are flushed even when fn fails.
func withEngine(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if ctxErr := rootCtx.Err(); ctxErr != nil {
				contract.LogWarn("Interrupted, saving snippets and patterns before exit", ctxErr)
			}
			err = errors.Join(err, sharedTeardown())
		}()
		return fn(cmd, args)
	}
}

// Execute runs the root command. An interrupt cancels rootCtx so engine
// commands stop early and still flush their state.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx
	return rootCmd.Execute()
}
