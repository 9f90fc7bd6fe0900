package outwriter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// WriteSuggestions outputs the suggestions for a cursor location.
// CSV output flattens patterns and snippets into one ranked list.
func WriteSuggestions(s *schema.Suggestions, cfg *contract.Config) error {
	return dispatch(cfg, s, suggestionTabular(s), func(w io.Writer) error {
		return writeSuggestionText(w, s)
	})
}

func suggestionTabular(s *schema.Suggestions) tabular {
	return tabular{
		header: []string{"rank", "kind", "id", "name", "score", "label", "code"},
		rows: func(plain bool) [][]string {
			rows := make([][]string, 0, len(s.Patterns)+len(s.Snippets))
			for _, p := range s.Patterns {
				rows = append(rows, []string{strconv.Itoa(len(rows) + 1), "pattern", p.ID, p.Name, fmtFloat(p.Score), scoreLabel(p.Score, plain), ""})
			}
			for _, sn := range s.Snippets {
				rows = append(rows, []string{strconv.Itoa(len(rows) + 1), "snippet", sn.ID, string(sn.Type), fmtFloat(sn.Score), scoreLabel(sn.Score, plain), sn.Code})
			}
			return rows
		},
	}
}

func writeSuggestionText(w io.Writer, s *schema.Suggestions) error {
	where := s.Context
	if s.Element != nil {
		where = fmt.Sprintf("%s (%s %s, lines %d-%d)", s.Context, s.Element.Type, s.Element.Name, s.Element.StartLine, s.Element.EndLine)
	}
	if _, err := fmt.Fprintf(w, "Suggestions for %s\nContext: %s\n", s.FilePath, where); err != nil {
		return err
	}
	if len(s.Patterns) == 0 && len(s.Snippets) == 0 {
		_, err := io.WriteString(w, "No suggestions found\n")
		return err
	}
	if len(s.Patterns) > 0 {
		if _, err := io.WriteString(w, "\nPatterns\n"); err != nil {
			return err
		}
		if err := writePatternTable(w, s.Patterns); err != nil {
			return err
		}
	}
	if len(s.Snippets) > 0 {
		if _, err := io.WriteString(w, "\nSnippets\n"); err != nil {
			return err
		}
		if err := writeSnippetTable(w, s.Snippets); err != nil {
			return err
		}
	}
	return nil
}
