package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huangsam/codeintel/schema"
)

// patternsCmd groups operations on the pattern notebook.
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Search, review and revise curated patterns",
	Long: `Work with the versioned pattern library stored under --storage-path.

Every content change creates a new version and archives the previous one.
Approval changes are recorded as transitions without bumping the version.

Subcommands:
  list     - Search patterns by text, language, category or status
  show     - Show a pattern with its steps and history
  approve  - Mark a pattern APPROVED
  reject   - Mark a pattern REJECTED
  revise   - Change name, description, category or tags
  add-step - Append a step
  use      - Count a use of a pattern
  export   - Write all patterns with history to a JSON file
  import   - Merge patterns from a JSON file

Examples:
  codeintel patterns list --status pending
  codeintel patterns approve pat_0b7c --actor alice`,
}

var patternsListCmd = &cobra.Command{
	Use:     "list [query]",
	Short:   "Search patterns",
	Args:    cobra.MaximumNArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		filters, err := patternFilters(cmd)
		if err != nil {
			return err
		}
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		patterns := engine.Notebook().SearchPatterns(query, filters)
		if len(patterns) > cfg.ResultLimit {
			patterns = patterns[:cfg.ResultLimit]
		}
		return writer.WritePatterns(patterns, cfg)
	}),
}

// patternFilters reads --language, --category and --status.
func patternFilters(cmd *cobra.Command) (schema.PatternFilters, error) {
	flags := cmd.Flags()
	language, _ := flags.GetString("language")
	category, _ := flags.GetString("category")
	status, _ := flags.GetString("status")

	filters := schema.PatternFilters{
		Language:       language,
		Category:       schema.PatternCategory(strings.ToLower(category)),
		ApprovalStatus: schema.ApprovalStatus(strings.ToUpper(status)),
	}
	if filters.Category != "" {
		if _, ok := schema.ValidPatternCategories[filters.Category]; !ok {
			return filters, fmt.Errorf("invalid category '%s'", category)
		}
	}
	if filters.ApprovalStatus != "" {
		if _, ok := schema.ValidApprovalStatuses[filters.ApprovalStatus]; !ok {
			return filters, fmt.Errorf("invalid status '%s'. must be pending, approved, rejected", status)
		}
	}
	return filters, nil
}

var patternsShowCmd = &cobra.Command{
	Use:     "show <pattern-id>",
	Short:   "Show a pattern with its steps, transitions and archived versions",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(_ *cobra.Command, args []string) error {
		record, err := engine.Notebook().History(args[0])
		if err != nil {
			return err
		}
		return writer.WritePatternHistory(record, cfg)
	}),
}

var patternsApproveCmd = &cobra.Command{
	Use:     "approve <pattern-id>",
	Short:   "Approve a pending pattern",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		p, err := engine.Notebook().Approve(args[0], actor)
		if err != nil {
			return err
		}
		return writer.WritePatterns([]schema.FunctionPattern{p}, cfg)
	}),
}

var patternsRejectCmd = &cobra.Command{
	Use:     "reject <pattern-id>",
	Short:   "Reject a pending pattern",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		p, err := engine.Notebook().Reject(args[0], actor)
		if err != nil {
			return err
		}
		return writer.WritePatterns([]schema.FunctionPattern{p}, cfg)
	}),
}

var patternsReviseCmd = &cobra.Command{
	Use:   "revise <pattern-id>",
	Short: "Revise a pattern's content, creating a new version",
	Long: `Change the name, description, category or tags of a pattern.
Only flags that are given are applied. A revision returns the pattern to PENDING.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		update, err := patternUpdate(cmd)
		if err != nil {
			return err
		}
		actor, _ := cmd.Flags().GetString("actor")
		p, err := engine.Notebook().Revise(args[0], update, actor)
		if err != nil {
			return err
		}
		return writer.WritePatterns([]schema.FunctionPattern{p}, cfg)
	}),
}

// patternUpdate builds a PatternUpdate from the flags the user changed.
func patternUpdate(cmd *cobra.Command) (schema.PatternUpdate, error) {
	flags := cmd.Flags()
	var update schema.PatternUpdate
	if flags.Changed("name") {
		name, _ := flags.GetString("name")
		update.Name = &name
	}
	if flags.Changed("description") {
		description, _ := flags.GetString("description")
		update.Description = &description
	}
	if flags.Changed("category") {
		raw, _ := flags.GetString("category")
		category := schema.PatternCategory(strings.ToLower(raw))
		if _, ok := schema.ValidPatternCategories[category]; !ok {
			return update, fmt.Errorf("invalid category '%s'", raw)
		}
		update.Category = &category
	}
	if flags.Changed("tags") {
		update.Tags, _ = flags.GetStringSlice("tags")
	}
	if update.Name == nil && update.Description == nil && update.Category == nil && update.Tags == nil {
		return update, fmt.Errorf("nothing to revise: pass --name, --description, --category or --tags")
	}
	return update, nil
}

var patternsAddStepCmd = &cobra.Command{
	Use:     "add-step <pattern-id>",
	Short:   "Append a step to a pattern, creating a new version",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		description, _ := flags.GetString("description")
		code, _ := flags.GetString("code")
		language, _ := flags.GetString("language")
		actor, _ := flags.GetString("actor")
		if code == "" {
			return fmt.Errorf("--code is required")
		}
		p, err := engine.Notebook().AddStep(args[0], schema.PatternStep{Description: description, CodeFragment: code, Language: language}, actor)
		if err != nil {
			return err
		}
		return writer.WritePatterns([]schema.FunctionPattern{p}, cfg)
	}),
}

var patternsUseCmd = &cobra.Command{
	Use:     "use <pattern-id>",
	Short:   "Count a use of a pattern",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(_ *cobra.Command, args []string) error {
		p, err := engine.Notebook().RecordUsage(args[0])
		if err != nil {
			return err
		}
		return writer.WritePatterns([]schema.FunctionPattern{p}, cfg)
	}),
}

var patternsExportCmd = &cobra.Command{
	Use:     "export <file>",
	Short:   "Write every pattern with its history to a JSON file",
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		if err := engine.Notebook().ExportPatterns(args[0]); err != nil {
			return err
		}
		cmd.Printf("Exported %d patterns to %s\n", engine.Notebook().Len(), args[0])
		return nil
	}),
}

var patternsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge patterns from a JSON file",
	Long: `Merge an export into the library. Patterns are matched by id and the
higher version wins.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: storeSetupWrapper,
	RunE: withEngine(func(cmd *cobra.Command, args []string) error {
		if err := engine.Notebook().ImportPatterns(args[0]); err != nil {
			return err
		}
		cmd.Printf("Library now holds %d patterns\n", engine.Notebook().Len())
		return nil
	}),
}
