package cmd

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huangsam/codeintel/internal/lang"
)

// versionCmd shows build details and the languages compiled into the binary.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of codeintel.",
	Long: `Display version information including build details.

Shows:
- Release version, commit and build timestamp
- Go runtime version
- Languages the analyzer and miner can parse`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("codeintel CLI\n")
		cmd.Printf("  Version:   %s\n", version)
		cmd.Printf("  Commit:    %s\n", commit)
		cmd.Printf("  Built:     %s\n", date)
		cmd.Printf("  Runtime:   %s\n", runtime.Version())
		cmd.Printf("  Languages: %s\n", strings.Join(lang.Names(), ", "))
	},
}
