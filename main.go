// main is the entry point of the codeintel CLI.
package main

import (
	"fmt"
	"os"

	"github.com/huangsam/codeintel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
