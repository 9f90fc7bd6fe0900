// Package cmd defines the command-line interface for codeintel.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(snippetsCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	snippetsCmd.AddCommand(snippetsListCmd, snippetsPromoteCmd, snippetsUsageCmd, snippetsExportCmd, snippetsImportCmd)
	patternsCmd.AddCommand(patternsListCmd, patternsShowCmd, patternsApproveCmd, patternsRejectCmd,
		patternsReviseCmd, patternsAddStepCmd, patternsUseCmd, patternsExportCmd, patternsImportCmd)
	dataCmd.AddCommand(dataExportCmd, dataImportCmd)
	cacheCmd.AddCommand(cacheClearCmd, cacheStatusCmd)
	historyCmd.AddCommand(historyClearCmd, historyStatusCmd, historyExportCmd, historyMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("storage-path", contract.DefaultStorageDir, "Directory holding snippets.json and the pattern library")
	rootCmd.PersistentFlags().IntP("limit", "l", contract.DefaultResultLimit, "Number of results to display")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent analyzer workers")
	rootCmd.PersistentFlags().String("exclude", "", "Comma-separated list of path prefixes or patterns to ignore")
	rootCmd.PersistentFlags().String("languages", "", "Comma-separated list of languages to analyze (default all)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("log-level", contract.DefaultLogLevel, "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("history-backend", "", "Run history backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("history-db-connect", "", "Database connection string for run history (must differ from cache-db-connect)")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of analyzeCmd to Viper
	analyzeCmd.Flags().Int("min-frequency", contract.DefaultMinFrequency, "Minimum occurrences for a snippet to be kept")
	analyzeCmd.Flags().Float64("min-score", contract.DefaultMinScore, "Minimum score for a snippet to be kept")
	analyzeCmd.Flags().String("snippet-types", "", "Comma-separated snippet types to mine (default all)")
	analyzeCmd.Flags().Int("hotspot-threshold", contract.DefaultHotspotThreshold, "References or duplicates that make an element a hotspot")
	if err := viper.BindPFlags(analyzeCmd.Flags()); err != nil {
		contract.LogFatal("Error binding analyze flags", err)
	}

	suggestCmd.Flags().Int("line", 0, "1-based cursor line inside the file")

	snippetsListCmd.Flags().String("language", "", "Only snippets of this language")
	snippetsListCmd.Flags().String("context", "", "Only snippets seen in a context starting with this prefix")

	snippetsPromoteCmd.Flags().String("name", "", "Pattern name (default derived from the snippet)")
	snippetsPromoteCmd.Flags().String("description", "", "Pattern description")
	snippetsPromoteCmd.Flags().String("category", "", "Pattern category (default follows the snippet type)")
	snippetsPromoteCmd.Flags().StringSlice("tags", nil, "Comma-separated tags")
	snippetsPromoteCmd.Flags().String("actor", "", "Who is promoting the snippet")

	snippetsUsageCmd.Flags().Bool("failed", false, "Record a failed use instead of a successful one")
	snippetsUsageCmd.Flags().String("context", "", "Context fingerprint the snippet was used in")

	patternsListCmd.Flags().String("language", "", "Only patterns of this language")
	patternsListCmd.Flags().String("category", "", "Only patterns of this category")
	patternsListCmd.Flags().String("status", "", "Only patterns with this status: pending or approved or rejected")
	for _, c := range []*cobra.Command{patternsApproveCmd, patternsRejectCmd, patternsReviseCmd, patternsAddStepCmd} {
		c.Flags().String("actor", "", "Who is making the change")
	}
	patternsReviseCmd.Flags().String("name", "", "New name")
	patternsReviseCmd.Flags().String("description", "", "New description")
	patternsReviseCmd.Flags().String("category", "", "New category")
	patternsReviseCmd.Flags().StringSlice("tags", nil, "New comma-separated tags")

	patternsAddStepCmd.Flags().String("description", "", "What the step does")
	patternsAddStepCmd.Flags().String("code", "", "Code fragment of the step")
	patternsAddStepCmd.Flags().String("language", "", "Language of the fragment (default the pattern's)")

	// Bind all flags of historyMigrateCmd to Viper
	historyMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(historyMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding history migrate flags", err)
	}
}
