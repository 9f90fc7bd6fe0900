package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// analyzeCmd analyzes and mines a workspace.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [workspace]",
	Short: "Analyze a workspace, mine snippets and recommend patterns",
	Long: `Parse every supported file under the workspace, build its dependency graph,
flag hotspots and duplicates, then mine recurring snippets.

Mined snippets are merged into the snippet table under --storage-path so that
usage and promotion carry across runs. Approved patterns for the workspace's
primary language are listed as recommendations.

When --history-backend is set, every run and its per-file metrics are recorded.

Examples:
  # Analyze the current directory
  codeintel analyze

  # Analyze a repo and write JSON
  codeintel analyze ~/src/app --output json --output-file report.json`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: withEngine(func(_ *cobra.Command, _ []string) error {
		report, err := engine.AnalyzeWorkspace(rootCtx, cfg.Path)
		if report == nil {
			return fmt.Errorf("failed to analyze %s: %w", cfg.Path, err)
		}
		if writeErr := writer.WriteReport(report, cfg); writeErr != nil {
			return writeErr
		}
		if err != nil {
			return fmt.Errorf("analysis of %s stopped early: %w", cfg.Path, err)
		}
		return nil
	}),
}

// suggestCmd returns suggestions for a cursor location in a file.
var suggestCmd = &cobra.Command{
	Use:   "suggest <file>",
	Short: "Suggest snippets and approved patterns for a location in a file",
	Long: `Analyze one file, find the element enclosing --line and list the snippets
seen in that context plus the approved patterns for the file's language.

Without --line, file-level suggestions are returned.

Examples:
  # Suggestions inside the function at line 42
  codeintel suggest internal/api/client.go --line 42`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, _ []string) error {
		var cursor *int
		if cmd.Flags().Changed("line") {
			line, err := cmd.Flags().GetInt("line")
			if err != nil {
				return err
			}
			cursor = &line
		}
		suggestions, err := engine.GetContextSuggestions(rootCtx, cfg.Path, cursor, cfg.ResultLimit)
		if err != nil {
			return fmt.Errorf("failed to get suggestions for %s: %w", cfg.Path, err)
		}
		return writer.WriteSuggestions(suggestions, cfg)
	}),
}

// statsCmd prints engine statistics.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show snippet, pattern and analyzer statistics",
	Long: `Show what the engine currently holds under --storage-path.

Analyzer figures only cover files analyzed in this process, so they are
zero unless combined with other commands in library use.

Examples:
  codeintel stats --output json`,
	Args:    cobra.NoArgs,
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(_ *cobra.Command, _ []string) error {
		return writer.WriteStats(engine.GetStatistics(), cfg)
	}),
}

// dataCmd groups bulk import and export of engine storage.
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or import snippets and patterns together",
	Long: `Move the snippet table and the pattern library between machines.

A data directory holds snippets.json and patterns.json.

Examples:
  codeintel data export ./backup
  codeintel data import ./backup`,
}

var dataExportCmd = &cobra.Command{
	Use:     "export <dir>",
	Short:   "Write snippets.json and patterns.json into a directory",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		if err := engine.ExportData(args[0]); err != nil {
			return err
		}
		cmd.Printf("Exported snippets and patterns to %s\n", args[0])
		return nil
	}),
}

var dataImportCmd = &cobra.Command{
	Use:     "import <dir>",
	Short:   "Load snippets.json and patterns.json from a directory",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		if err := engine.ImportData(args[0]); err != nil {
			return err
		}
		cmd.Printf("Imported data from %s\n", args[0])
		return nil
	}),
}
