package outwriter

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/huangsam/codeintel/internal/contract"
	"github.com/huangsam/codeintel/schema"
)

// WriteStats outputs engine statistics as metric/value pairs.
func WriteStats(stats schema.EngineStats, cfg *contract.Config) error {
	rows := statRows(stats)
	t := tabular{
		header: []string{"component", "metric", "value"},
		rows:   func(bool) [][]string { return rows },
	}
	return dispatch(cfg, stats, t, func(w io.Writer) error {
		if err := writeTable(w, []string{"Component", "Metric", "Value"}, rows); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "Generated at %s\n", stats.GeneratedAt.Format(timeLayout))
		return err
	})
}

func statRows(stats schema.EngineStats) [][]string {
	a, m, n := stats.Analyzer, stats.Miner, stats.Notebook
	rows := [][]string{
		{"analyzer", "files_analyzed", strconv.Itoa(a.FilesAnalyzed)},
		{"analyzer", "hotspots", strconv.Itoa(a.HotspotCount)},
		{"analyzer", "duplicate_groups", strconv.Itoa(a.DuplicateGroups)},
		{"analyzer", "average_complexity", fmtFloat(a.AverageComplexity)},
		{"analyzer", "cache_hits", strconv.FormatInt(a.CacheHits, 10)},
		{"analyzer", "cache_misses", strconv.FormatInt(a.CacheMisses, 10)},
	}
	rows = append(rows, countRows("analyzer", "language", a.ByLanguage)...)
	rows = append(rows, countRows("analyzer", "element", a.ByElementType)...)
	rows = append(rows,
		[]string{"miner", "total_snippets", strconv.Itoa(m.TotalSnippets)},
		[]string{"miner", "total_frequency", strconv.Itoa(m.TotalFrequency)},
		[]string{"miner", "average_score", fmtFloat(m.AverageScore)},
		[]string{"miner", "total_usages", strconv.Itoa(m.TotalUsages)},
	)
	rows = append(rows, countRows("miner", "type", m.ByType)...)
	rows = append(rows, countRows("miner", "language", m.ByLanguage)...)
	rows = append(rows,
		[]string{"notebook", "total_patterns", strconv.Itoa(n.TotalPatterns)},
		[]string{"notebook", "total_versions", strconv.Itoa(n.TotalVersions)},
		[]string{"notebook", "total_usage", strconv.Itoa(n.TotalUsage)},
	)
	rows = append(rows, countRows("notebook", "status", n.ByStatus)...)
	rows = append(rows, countRows("notebook", "category", n.ByCategory)...)
	rows = append(rows, countRows("notebook", "language", n.ByLanguage)...)
	if !n.LastSavedAt.IsZero() {
		rows = append(rows, []string{"notebook", "last_saved_at", n.LastSavedAt.Format(timeLayout)})
	}
	return append(rows, []string{"manager", "auto_promoted", strconv.Itoa(stats.AutoPromoted)})
}

// countRows turns a breakdown map into rows sorted by key.
func countRows[K ~string](component, prefix string, counts map[K]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{component, prefix + ":" + k, strconv.Itoa(counts[K(k)])})
	}
	return rows
}
