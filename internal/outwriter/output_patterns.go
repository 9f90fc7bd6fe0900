package outwriter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// WritePatterns outputs patterns, dispatching on the configured format.
func WritePatterns(patterns []schema.FunctionPattern, cfg *contract.Config) error {
	return dispatch(cfg, patterns, patternTabular(patterns), func(w io.Writer) error {
		return writePatternTable(w, patterns)
	})
}

func patternTabular(patterns []schema.FunctionPattern) tabular {
	return tabular{
		header: []string{"id", "name", "category", "tier", "language", "status", "version", "steps", "score", "usage", "created_by", "source_snippet", "tags"},
		rows: func(bool) [][]string {
			rows := make([][]string, 0, len(patterns))
			for _, p := range patterns {
				rows = append(rows, []string{
					p.ID,
					p.Name,
					string(p.Category),
					string(p.ComplexityTier),
					p.Language,
					string(p.ApprovalStatus),
					strconv.Itoa(p.Version),
					strconv.Itoa(len(p.Steps)),
					fmtFloat(p.Score),
					strconv.Itoa(p.Metadata.UsageCount),
					p.Metadata.CreatedBy,
					p.SourceSnippetID,
					strings.Join(p.Tags, "|"),
				})
			}
			return rows
		},
	}
}

func writePatternTable(w io.Writer, patterns []schema.FunctionPattern) error {
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		rows = append(rows, []string{
			p.ID,
			oneLine(p.Name, 40),
			string(p.Category),
			string(p.ComplexityTier),
			p.Language,
			string(p.ApprovalStatus),
			"v" + strconv.Itoa(p.Version),
			strconv.Itoa(len(p.Steps)),
			fmtFloat(p.Score),
		})
	}
	if err := writeTable(w, []string{"ID", "Name", "Category", "Tier", "Lang", "Status", "Ver", "Steps", "Score"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Showing %d patterns\n", len(patterns))
	return err
}

// WritePatternHistory outputs a pattern, its steps and its version trail.
func WritePatternHistory(record schema.PatternRecord, cfg *contract.Config) error {
	versions := append(append([]schema.FunctionPattern(nil), record.Versions...), record.Current)
	return dispatch(cfg, record, historyTabular(versions), func(w io.Writer) error {
		return writePatternDetail(w, record)
	})
}

func historyTabular(versions []schema.FunctionPattern) tabular {
	return tabular{
		header: []string{"version", "name", "status", "steps", "updated_by", "updated_at"},
		rows: func(bool) [][]string {
			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				rows = append(rows, []string{
					strconv.Itoa(v.Version),
					v.Name,
					string(v.ApprovalStatus),
					strconv.Itoa(len(v.Steps)),
					v.Metadata.UpdatedBy,
					v.Metadata.UpdatedAt.Format(timeLayout),
				})
			}
			return rows
		},
	}
}

func writePatternDetail(w io.Writer, record schema.PatternRecord) error {
	p := record.Current
	header := fmt.Sprintf("%s (%s) v%d [%s]\n%s\nCategory: %s  Tier: %s  Language: %s  Created by: %s\n",
		p.Name, p.ID, p.Version, p.ApprovalStatus, p.Description, p.Category, p.ComplexityTier, p.Language, p.Metadata.CreatedBy)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	steps := make([][]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, []string{s.ID, s.Description, oneLine(s.CodeFragment, maxCodeWidth(40))})
	}
	if err := writeTable(w, []string{"Step", "Description", "Code"}, steps); err != nil {
		return err
	}

	trail := make([][]string, 0, len(p.Transitions))
	for _, t := range p.Transitions {
		from := string(t.From)
		if from == "" {
			from = "-"
		}
		trail = append(trail, []string{"v" + strconv.Itoa(t.Version), from, string(t.To), t.Actor, t.At.Format(timeLayout)})
	}
	if err := writeTable(w, []string{"Ver", "From", "To", "Actor", "At"}, trail); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d archived versions\n", len(record.Versions))
	return err
}
