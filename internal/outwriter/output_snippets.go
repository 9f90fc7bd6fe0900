package outwriter

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/internal/parquet"
	"github.com/huangsam/codeintel/schema"
)

// snippetFixedWidth covers every snippet column except the code.
const snippetFixedWidth = 70

// WriteSnippets outputs snippets, dispatching on the configured format.
// Parquet output requires an output file.
func WriteSnippets(snippets []schema.CodeSnippet, cfg *contract.Config) error {
	if cfg.Output == schema.ParquetOut {
		if cfg.OutputFile == "" {
			return errors.New("--output-file is required for parquet output")
		}
		if err := parquet.WriteSnippetsParquet(parquet.ConvertSnippets(snippets), cfg.OutputFile); err != nil {
			return fmt.Errorf("error writing parquet output: %w", err)
		}
		return nil
	}
	t := snippetTabular(snippets)
	return dispatch(cfg, snippets, t, func(w io.Writer) error {
		return writeSnippetTable(w, snippets)
	})
}

func snippetTabular(snippets []schema.CodeSnippet) tabular {
	return tabular{
		header: []string{"rank", "id", "type", "language", "frequency", "score", "label", "contexts", "successes", "failures", "code"},
		rows: func(plain bool) [][]string {
			rows := make([][]string, 0, len(snippets))
			for i, s := range snippets {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					s.ID,
					string(s.Type),
					s.Language,
					strconv.Itoa(s.Frequency),
					fmtFloat(s.Score),
					scoreLabel(s.Score, plain),
					strings.Join(s.Contexts, "|"),
					strconv.Itoa(s.Usage.SuccessCount),
					strconv.Itoa(s.Usage.FailureCount),
					s.Code,
				})
			}
			return rows
		},
	}
}

func writeSnippetTable(w io.Writer, snippets []schema.CodeSnippet) error {
	width := maxCodeWidth(snippetFixedWidth)
	rows := make([][]string, 0, len(snippets))
	for i, s := range snippets {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.ID,
			string(s.Type),
			strconv.Itoa(s.Frequency),
			fmtFloat(s.Score),
			scoreLabel(s.Score, false),
			strconv.Itoa(s.DistinctContexts()),
			oneLine(s.Code, width),
		})
	}
	if err := writeTable(w, []string{"Rank", "ID", "Type", "Freq", "Score", "Label", "Ctx", "Code"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Showing %d snippets\n", len(snippets))
	return err
}
