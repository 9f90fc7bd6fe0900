package outwriter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// reportTopSnippets caps the snippet table of a text report.
const reportTopSnippets = 10

// WriteReport outputs the result of analyzing and mining a workspace.
// CSV output lists the per-file analysis rows.
func WriteReport(report *schema.WorkspaceReport, cfg *contract.Config) error {
	return dispatch(cfg, report, fileTabular(report), func(w io.Writer) error {
		return writeReportText(w, report)
	})
}

func fileTabular(report *schema.WorkspaceReport) tabular {
	return tabular{
		header: []string{"file", "language", "elements", "lines", "complexity", "hotspot", "duplicate_group"},
		rows: func(bool) [][]string {
			if report.Analysis == nil {
				return nil
			}
			rows := make([][]string, 0, len(report.Analysis.Files))
			for _, f := range report.Analysis.Files {
				rows = append(rows, []string{
					f.FilePath,
					f.Language,
					strconv.Itoa(len(f.Elements)),
					strconv.Itoa(f.LineCount),
					strconv.Itoa(f.ComplexityScore),
					strconv.FormatBool(f.IsHotspot),
					f.DuplicateGroupID,
				})
			}
			return rows
		},
	}
}

func writeReportText(w io.Writer, report *schema.WorkspaceReport) error {
	files, failures, snippets := 0, 0, 0
	root := ""
	if a := report.Analysis; a != nil {
		root = a.Root
		files = len(a.Files)
		failures = len(a.Failures)
	}
	if m := report.Mining; m != nil {
		snippets = len(m.Snippets)
		failures += len(m.Failures)
	}

	summary := fmt.Sprintf("Workspace: %s\nFiles analyzed: %d  Failures: %d  Snippets: %d  Primary language: %s\n",
		root, files, failures, snippets, report.PrimaryLanguage)
	if report.RunID > 0 {
		summary += fmt.Sprintf("Run ID: %d\n", report.RunID)
	}
	if _, err := io.WriteString(w, summary); err != nil {
		return err
	}

	if report.Analysis != nil && len(report.Analysis.Hotspots) > 0 {
		if _, err := io.WriteString(w, "\nHotspots\n"); err != nil {
			return err
		}
		rows := make([][]string, 0, len(report.Analysis.Hotspots))
		for _, h := range report.Analysis.Hotspots {
			rows = append(rows, []string{
				h.Name,
				contract.TruncatePath(h.FilePath, 50),
				strconv.Itoa(h.ReferenceCount),
				strconv.Itoa(h.DuplicateCount),
			})
		}
		if err := writeTable(w, []string{"Element", "File", "Refs", "Dups"}, rows); err != nil {
			return err
		}
	}

	if report.Mining != nil && len(report.Mining.Snippets) > 0 {
		top := report.Mining.Snippets
		if len(top) > reportTopSnippets {
			top = top[:reportTopSnippets]
		}
		if _, err := io.WriteString(w, "\nTop snippets\n"); err != nil {
			return err
		}
		if err := writeSnippetTable(w, top); err != nil {
			return err
		}
	}

	if len(report.Recommendations) > 0 {
		if _, err := io.WriteString(w, "\nRecommended patterns\n"); err != nil {
			return err
		}
		if err := writePatternTable(w, report.Recommendations); err != nil {
			return err
		}
	}

	var failed []schema.Failure
	if report.Analysis != nil {
		failed = append(failed, report.Analysis.Failures...)
	}
	if report.Mining != nil {
		failed = append(failed, report.Mining.Failures...)
	}
	return writeFailures(w, failed)
}

func writeFailures(w io.Writer, failures []schema.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "\nFailures\n"); err != nil {
		return err
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{contract.TruncatePath(f.Path, 50), string(f.Reason), oneLine(f.Message, 60)})
	}
	return writeTable(w, []string{"Path", "Reason", "Message"}, rows)
}
