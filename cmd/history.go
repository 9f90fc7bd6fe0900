package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/huangsam/codeintel/internal/iocache"
	"github.com/huangsam/codeintel/schema"
)

// historySetup loads minimal configuration needed for history operations.
func historySetup(_ *cobra.Command, _ []string) error {
	backend, connStr, err := backendSetup("history-backend", "history-db-connect", schema.NoneBackend)
	if err != nil {
		return err
	}
	cfg.HistoryBackend = backend
	cfg.HistoryDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")
	return nil
}

// historyCmd focused on run history management.
//
// Note: History subcommands use minimal initialization (historySetup) instead of
// the full sharedSetup used by engine commands.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage workspace run history and exports",
	Long: `Manage the history of analyze runs used for trend tracking and reporting.

When --history-backend is set, every analyze run stores:
- Run metadata (workspace, timestamps, duration, configuration)
- Totals (files, failures, snippets, primary language)
- Per-file structural metrics (complexity, elements, lines, hotspot, duplicates)

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled, default)

Subcommands:
  status  - Show history statistics
  export  - Export data to Parquet for analytics
  clear   - Remove all history
  migrate - Run database schema migrations

Examples:
  # Check history status
  codeintel history status --history-backend sqlite

  # Export for analysis in pandas/DuckDB
  codeintel history export --history-backend sqlite --output-file runs`,
}

// historyClearCmd clears run history.
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all recorded runs and file metrics",
	Long: `Delete all stored runs and per-file metrics.

WARNING: This action cannot be undone. Consider exporting data first.`,
	Args:    cobra.NoArgs,
	PreRunE: historySetup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := iocache.ClearHistory(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		cmd.Println("History cleared successfully.")
		return nil
	},
}

// historyStatusCmd shows history status.
var historyStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Display run history statistics and connection details",
	Args:    cobra.NoArgs,
	PreRunE: historySetup,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := iocache.NewHistoryStore(cfg.HistoryBackend, cfg.HistoryDBConnect)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer func() { _ = store.Close() }()
		status, err := store.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get history status: %w", err)
		}
		iocache.PrintHistoryStatus(os.Stdout, status)
		return nil
	},
}

// historyExportCmd exports run history to Parquet files.
var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to Parquet for BI tools and analytics",
	Long: `Export all stored runs and file metrics to Parquet.

Writes <output-file>.runs.parquet and <output-file>.file_metrics.parquet.

Requires: --output-file parameter

Examples:
  codeintel history export --output-file codeintel
  duckdb -c "SELECT * FROM read_parquet('codeintel.runs.parquet') LIMIT 10"`,
	Args:    cobra.NoArgs,
	PreRunE: historySetup,
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := iocache.NewHistoryStore(cfg.HistoryBackend, cfg.HistoryDBConnect)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer func() { _ = store.Close() }()
		if err := iocache.ExportHistory(store, cfg.OutputFile, os.Stdout); err != nil {
			return fmt.Errorf("failed to export history: %w", err)
		}
		return nil
	},
}

// historyMigrateCmd runs database migrations for the history store.
var historyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage schema versions of the run history store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  codeintel history migrate --history-backend sqlite

  # Drop the file metrics table
  codeintel history migrate --history-backend sqlite --target-version 1

  # Rollback to initial state
  codeintel history migrate --history-backend sqlite --target-version 0`,
	Args:    cobra.NoArgs,
	PreRunE: historySetup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		targetVersion := viper.GetInt("target-version")
		result, err := iocache.MigrateHistory(cfg.HistoryBackend, cfg.HistoryDBConnect, targetVersion)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		cmd.Println(result.String())
		return nil
	},
}
