package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/codeintel/schema"
)

// Score labels, strongest first.
const (
	StrongValue   = "Strong"
	SolidValue    = "Solid"
	EmergingValue = "Emerging"
	WeakValue     = "Weak"
)

// Label colors for tables.
var (
	StrongColor   = color.New(color.FgGreen, color.Bold)
	SolidColor    = color.New(color.FgCyan, color.Bold)
	EmergingColor = color.New(color.FgYellow)
	WeakColor     = color.New(color.FgWhite)
)

// GetColorLabel returns the colored schema.GetPlainLabel of score.
func GetColorLabel(score float64) string {
	text := schema.GetPlainLabel(score)

	switch text {
	case StrongValue:
		return StrongColor.Sprint(text)
	case SolidValue:
		return SolidColor.Sprint(text)
	case EmergingValue:
		return EmergingColor.Sprint(text)
	default:
		return WeakColor.Sprint(text)
	}
}

// SelectOutputFile returns the file to write results to, or os.Stdout when filePath is empty.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// ShouldIgnore reports whether a workspace-relative path matches an exclude pattern.
// Globs match the path or its base name, "dir/" matches a prefix, ".ext" a suffix,
// and anything else a substring. Examples: "vendor/", "*.min.js", ".pb.go".
func ShouldIgnore(path string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}

		if strings.ContainsAny(ex, "*?[") {
			pat := strings.ReplaceAll(ex, "**", "*")
			if ok, err := filepath.Match(pat, path); err == nil && ok {
				return true
			}
			if ok, err := filepath.Match(pat, filepath.Base(path)); err == nil && ok {
				return true
			}
			continue
		}

		switch {
		case strings.HasSuffix(ex, "/"):
			if strings.HasPrefix(path, ex) {
				return true
			}
		case strings.HasPrefix(ex, "."):
			if strings.HasSuffix(path, ex) {
				return true
			}
		case strings.Contains(path, ex):
			return true
		}
	}
	return false
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// GetCacheDBFilePath returns the path to the SQLite DB file for the analysis cache.
func GetCacheDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".codeintel_cache.db"
	}
	return filepath.Join(homeDir, ".codeintel_cache.db")
}

// GetHistoryDBFilePath returns the path to the SQLite DB file for run history.
func GetHistoryDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".codeintel_history.db"
	}
	return filepath.Join(homeDir, ".codeintel_history.db")
}

// NormalizeRelPath returns path relative to root using forward slashes,
// or the slash-form path itself when it is not under root.
func NormalizeRelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return strings.TrimPrefix(filepath.ToSlash(rel), "./")
}

// TruncatePath keeps the tail of path within maxWidth runes behind a "..." prefix.
// Widths of 3 or less leave path unchanged.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses yes/no, true/false and 1/0, ignoring case.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
