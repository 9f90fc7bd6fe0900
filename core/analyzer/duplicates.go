package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/huangsam/codeintel/schema"
)

// candidate is a callable body eligible for duplicate detection.
type candidate struct {
	id       string
	tokens   []string
	shingles map[string]struct{}
}

// findDuplicates groups callables whose normalized bodies are near-identical.
// A 3-gram Jaccard prefilter runs before the difflib ratio, and confirmed
// pairs are merged with union-find.
func findDuplicates(files []schema.FileAnalysis, threshold float64, minTokens int) []schema.DuplicateGroup {
	var cands []candidate
	for _, fa := range files {
		for _, el := range fa.Elements {
			if !isCallable(el.Type) || el.Normalized == "" {
				continue
			}
			tokens := strings.Fields(el.Normalized)
			if len(tokens) < minTokens {
				continue
			}
			cands = append(cands, candidate{id: el.ID, tokens: tokens, shingles: shingles(tokens)})
		}
	}
	if len(cands) < 2 {
		return []schema.DuplicateGroup{}
	}
	sort.Slice(cands, func(i, j int) bool {
		if len(cands[i].tokens) != len(cands[j].tokens) {
			return len(cands[i].tokens) < len(cands[j].tokens)
		}
		return cands[i].id < cands[j].id
	})

	uf := newUnionFind(len(cands))
	minSim := make(map[int]float64)
	for i := range cands {
		for j := i + 1; j < len(cands); j++ {
			// Sorted by length, so the length bound only gets worse
			li, lj := len(cands[i].tokens), len(cands[j].tokens)
			if 2*float64(li)/float64(li+lj) < threshold {
				break
			}
			if jaccard(cands[i].shingles, cands[j].shingles) < threshold/2 {
				continue
			}
			m := difflib.NewMatcher(cands[i].tokens, cands[j].tokens)
			if m.QuickRatio() < threshold {
				continue
			}
			ratio := m.Ratio()
			if ratio < threshold {
				continue
			}
			uf.union(i, j)
			for _, k := range []int{i, j} {
				if cur, ok := minSim[k]; !ok || ratio < cur {
					minSim[k] = ratio
				}
			}
		}
	}

	members := make(map[int][]int)
	for i := range cands {
		if _, ok := minSim[i]; ok {
			r := uf.find(i)
			members[r] = append(members[r], i)
		}
	}

	groups := make([]schema.DuplicateGroup, 0, len(members))
	for _, idx := range members {
		g := schema.DuplicateGroup{Similarity: 1}
		for _, k := range idx {
			g.ElementIDs = append(g.ElementIDs, cands[k].id)
			g.Similarity = min(g.Similarity, minSim[k])
		}
		sort.Strings(g.ElementIDs)
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ElementIDs[0] < groups[j].ElementIDs[0] })
	for i := range groups {
		groups[i].ID = fmt.Sprintf("dup-%d", i+1)
	}
	return groups
}

func shingles(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for i := 0; i+3 <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+3], "\x00")] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
