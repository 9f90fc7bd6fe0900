package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/internal/iocache"
	"github.com/huangsam/codeintel/schema"
)

// backendSetup reads one backend/connection pair without the full shared setup.
func backendSetup(backendKey, connectKey string, fallback schema.DatabaseBackend) (schema.DatabaseBackend, string, error) {
	if err := loadConfigFile(); err != nil {
		return "", "", err
	}
	backend := schema.DatabaseBackend(strings.ToLower(viper.GetString(backendKey)))
	if backend == "" {
		backend = fallback
	}
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return "", "", fmt.Errorf("invalid %s '%s'. must be sqlite, mysql, postgresql, none", backendKey, backend)
	}
	connStr := viper.GetString(connectKey)
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup(_ *cobra.Command, _ []string) error {
	backend, connStr, err := backendSetup("cache-backend", "cache-db-connect", schema.SQLiteBackend)
	if err != nil {
		return err
	}
	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr
	return nil
}

// cacheCmd focused on cache management.
//
// Note: Cache subcommands use minimal initialization (cacheSetup) instead of
// the full sharedSetup. This avoids loading the snippet table and the pattern
// library for simple cache operations.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the file analysis cache (improves performance)",
	Long: `Manage the cache that stores parsed file analyses between runs.

Entries are keyed by path and modification time, compressed with zstd, and
ignored once older than --cache-ttl.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status - Show cache statistics and connection info
  clear  - Remove all cached data

Examples:
  # Check cache status
  codeintel cache status

  # Clear cache after upgrading grammars
  codeintel cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached file analyses",
	Long: `Delete all cached file analyses from the configured backend.

Examples:
  # Clear SQLite cache (default)
  codeintel cache clear

  # Clear MySQL cache (set connection string via env variable)
  CODEINTEL_CACHE_BACKEND=mysql CODEINTEL_CACHE_DB_CONNECT="..." codeintel cache clear`,
	Args:    cobra.NoArgs,
	PreRunE: cacheSetup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := iocache.ClearCache(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		cmd.Println("Cache cleared successfully.")
		return nil
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show the backend, entry count, newest and oldest entries and table size
of the analysis cache.

Examples:
  codeintel cache status`,
	Args:    cobra.NoArgs,
	PreRunE: cacheSetup,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := iocache.NewCacheStore(iocache.AnalysisCacheTable, cfg.CacheBackend, cfg.CacheDBConnect)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer func() { _ = store.Close() }()
		status, err := store.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get cache status: %w", err)
		}
		iocache.PrintCacheStatus(os.Stdout, status)
		return nil
	},
}
