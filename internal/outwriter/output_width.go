package outwriter

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// maxCodeWidth is the width available for code fragments in a table row
// after reserving reserved columns.
func maxCodeWidth(reserved int) int {
	termWidth := 80 // Conservative default for narrow terminals and CI
	if detected, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && detected > 0 {
		termWidth = detected
	}
	available := termWidth - reserved - 20 // Borders, separators and padding
	if available < 20 {
		return 20
	}
	if available > 80 {
		return 80
	}
	return available
}

// oneLine collapses code onto a single line and truncates it to width runes.
func oneLine(code string, width int) string {
	s := strings.Join(strings.Fields(code), " ")
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
