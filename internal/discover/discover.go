// Package discover finds analyzable source files in a workspace.
package discover

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/internal/lang"
)

// Entry represents a discovered source file.
type Entry struct {
	Path     string // Path usable with the walked file system
	RelPath  string // Slash-separated, relative to the workspace root
	Language string
	Size     int64
	ModTime  time.Time
}

// Options restrict which files are returned.
type Options struct {
	Languages []string // Allow-list of language names; empty admits all
	Excludes  []string // Patterns understood by contract.ShouldIgnore
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	"egg-info":      {},
	".codeintel":    {},
}

// Files discovers supported source files under root, sorted by relative path.
// A root that is itself a file yields at most that file.
func Files(ctx context.Context, fs afero.Fs, root string, opts Options) ([]Entry, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		l := lang.Allowed(root, opts.Languages)
		if l == nil {
			return nil, nil
		}
		return []Entry{{
			Path:     root,
			RelPath:  filepath.ToSlash(filepath.Base(root)),
			Language: l.Name,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}}, nil
	}

	gi := loadGitignore(fs, root)
	var results []Entry

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // skip errors
		}

		name := fi.Name()
		rel := contract.NormalizeRelPath(root, path)

		if fi.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if contract.ShouldIgnore(rel+"/", opts.Excludes) || (gi != nil && gi.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if contract.ShouldIgnore(rel, opts.Excludes) || (gi != nil && gi.MatchesPath(rel)) {
			return nil
		}

		l := lang.Allowed(name, opts.Languages)
		if l == nil {
			return nil
		}

		results = append(results, Entry{
			Path:     path,
			RelPath:  rel,
			Language: l.Name,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return results, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RelPath < results[j].RelPath
	})
	return results, nil
}

// loadGitignore compiles the root .gitignore, or returns nil when there is none.
func loadGitignore(fs afero.Fs, root string) *ignore.GitIgnore {
	data, err := afero.ReadFile(fs, filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}
