package schema

import "sort"

// GraphNode is a vertex in the dependency graph. Nodes are either elements or modules.
type GraphNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FilePath string `json:"filePath,omitempty"`
	Module   bool   `json:"module,omitempty"`
}

// DependencyGraph stores nodes in an arena and edges as index pairs.
// Cycles are allowed; every traversal carries a visited set.
type DependencyGraph struct {
	Nodes []GraphNode      `json:"nodes"`
	Edges []DependencyEdge `json:"edges"`

	index map[string]int
	out   map[int][]int
	in    map[int][]int
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		index: make(map[string]int),
		out:   make(map[int][]int),
		in:    make(map[int][]int),
	}
}

// AddNode inserts a node if absent and returns its arena index.
func (g *DependencyGraph) AddNode(n GraphNode) int {
	g.ensureIndex()
	if i, ok := g.index[n.ID]; ok {
		return i
	}
	g.Nodes = append(g.Nodes, n)
	i := len(g.Nodes) - 1
	g.index[n.ID] = i
	return i
}

// AddEdge inserts an edge, creating bare nodes for unknown endpoints.
func (g *DependencyGraph) AddEdge(e DependencyEdge) {
	from := g.AddNode(GraphNode{ID: e.From, Name: e.From})
	to := g.AddNode(GraphNode{ID: e.To, Name: e.To})
	g.Edges = append(g.Edges, e)
	g.out[from] = append(g.out[from], to)
	g.in[to] = append(g.in[to], from)
}

// Node returns the node with the given id.
func (g *DependencyGraph) Node(id string) (GraphNode, bool) {
	g.ensureIndex()
	i, ok := g.index[id]
	if !ok {
		return GraphNode{}, false
	}
	return g.Nodes[i], true
}

// InDegree returns the number of edges pointing at id.
func (g *DependencyGraph) InDegree(id string) int {
	g.ensureIndex()
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return len(g.in[i])
}

// Reachable returns the ids reachable from id, excluding id itself unless it lies on a cycle.
func (g *DependencyGraph) Reachable(id string) []string {
	g.ensureIndex()
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	visited := make(map[int]bool)
	stack := append([]int(nil), g.out[start]...)
	var result []string
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		result = append(result, g.Nodes[n].ID)
		stack = append(stack, g.out[n]...)
	}
	sort.Strings(result)
	return result
}

// Cycles returns the strongly connected components that contain a cycle,
// each sorted by id, using Tarjan's algorithm.
func (g *DependencyGraph) Cycles() [][]string {
	g.ensureIndex()
	var (
		counter int
		stack   []int
		onStack = make(map[int]bool)
		order   = make(map[int]int)
		low     = make(map[int]int)
		result  [][]string
	)

	var strongConnect func(v int)
	strongConnect = func(v int) {
		order[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range g.out[v] {
			if w == v {
				selfLoop = true
			}
			if _, seen := order[w]; !seen {
				strongConnect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], order[w])
			}
		}

		if low[v] != order[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, g.Nodes[w].ID)
			if w == v {
				break
			}
		}
		if len(comp) > 1 || selfLoop {
			sort.Strings(comp)
			result = append(result, comp)
		}
	}

	for v := range g.Nodes {
		if _, seen := order[v]; !seen {
			strongConnect(v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i][0] < result[j][0] })
	return result
}

// ensureIndex rebuilds adjacency after JSON decoding, which only restores exported fields.
func (g *DependencyGraph) ensureIndex() {
	if g.index != nil {
		return
	}
	g.index = make(map[string]int, len(g.Nodes))
	g.out = make(map[int][]int)
	g.in = make(map[int][]int)
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
	for _, e := range g.Edges {
		from, okFrom := g.index[e.From]
		to, okTo := g.index[e.To]
		if okFrom && okTo {
			g.out[from] = append(g.out[from], to)
			g.in[to] = append(g.in[to], from)
		}
	}
}
