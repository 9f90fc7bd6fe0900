package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huangsam/codeintel/schema"
)

// snippetsCmd groups operations on the mined snippet table.
var snippetsCmd = &cobra.Command{
	Use:   "snippets",
	Short: "List, promote and track mined snippets",
	Long: `Work with the snippets mined by analyze.

Subcommands:
  list    - Rank snippets, optionally by language or context prefix
  promote - Turn a snippet into a pattern
  usage   - Record that a snippet was used, which may auto-promote it
  export  - Write the snippet table to a JSON file
  import  - Replace the snippet table with a JSON file

Examples:
  codeintel snippets list --language go --limit 10
  codeintel snippets usage snp_1a2b3c4d5e6f7a8b --context go:function:main`,
}

var snippetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snippets ranked by score",
	Long: `List snippets ranked by score, most recent use, then frequency.

Use --output parquet with --output-file to write a columnar snapshot.`,
	Args:    cobra.NoArgs,
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, _ []string) error {
		language, _ := cmd.Flags().GetString("language")
		context, _ := cmd.Flags().GetString("context")
		snippets := engine.Miner().GetSnippets(schema.SnippetQuery{Language: language, Context: context, Limit: cfg.ResultLimit})
		return writer.WriteSnippets(snippets, cfg)
	}),
}

var snippetsPromoteCmd = &cobra.Command{
	Use:   "promote <snippet-id>",
	Short: "Create a pattern from a snippet",
	Long: `Create a one-step pattern from a snippet. The category follows the snippet
type unless --category is given, and the status is the configured default approval.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		description, _ := flags.GetString("description")
		category, _ := flags.GetString("category")
		actor, _ := flags.GetString("actor")
		tags, _ := flags.GetStringSlice("tags")

		overrides := schema.PatternOverrides{
			Name:        name,
			Description: description,
			Category:    schema.PatternCategory(strings.ToLower(category)),
			Tags:        tags,
		}
		if overrides.Category != "" {
			if _, ok := schema.ValidPatternCategories[overrides.Category]; !ok {
				return fmt.Errorf("invalid category '%s'", category)
			}
		}
		p, err := engine.PromoteSnippetToPattern(args[0], actor, overrides)
		if err != nil {
			return err
		}
		return writer.WritePatterns([]schema.FunctionPattern{p}, cfg)
	}),
}

var snippetsUsageCmd = &cobra.Command{
	Use:   "usage <snippet-id>",
	Short: "Record a successful or failed use of a snippet",
	Long: `Record that a snippet was applied. Successful uses raise its score and can
auto-promote it into a pattern once frequency, score and context thresholds are met.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		failed, _ := cmd.Flags().GetBool("failed")
		usageContext, _ := cmd.Flags().GetString("context")
		result, err := engine.RecordSnippetUsage(args[0], !failed, usageContext)
		if err != nil {
			return err
		}
		if err := writer.WriteSnippets([]schema.CodeSnippet{result.Snippet}, cfg); err != nil {
			return err
		}
		if result.AutoPromoted != nil {
			cmd.PrintErrf("Snippet auto-promoted to pattern %s\n", result.AutoPromoted.ID)
		}
		return nil
	}),
}

var snippetsExportCmd = &cobra.Command{
	Use:     "export <file>",
	Short:   "Write the snippet table to a JSON file",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		if err := engine.Miner().ExportSnippets(args[0]); err != nil {
			return err
		}
		cmd.Printf("Exported snippets to %s\n", args[0])
		return nil
	}),
}

var snippetsImportCmd = &cobra.Command{
	Use:     "import <file>",
	Short:   "Replace the snippet table with a JSON file",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		if err := engine.Miner().ImportSnippets(args[0]); err != nil {
			return err
		}
		cmd.Printf("Imported snippets from %s\n", args[0])
		return nil
	}),
}
