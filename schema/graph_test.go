package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/huangsam/codeintel/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCyclicGraph() *schema.DependencyGraph {
	g := schema.NewDependencyGraph()
	g.AddNode(schema.GraphNode{ID: "module:a.py", Name: "a.py", Module: true})
	g.AddNode(schema.GraphNode{ID: "module:b.py", Name: "b.py", Module: true})
	g.AddEdge(schema.DependencyEdge{From: "module:a.py", To: "module:b.py", Kind: schema.ImportEdge})
	g.AddEdge(schema.DependencyEdge{From: "module:b.py", To: "module:a.py", Kind: schema.ImportEdge})
	g.AddEdge(schema.DependencyEdge{From: "module:b.py", To: "module:c.py", Kind: schema.ImportEdge})
	return g
}

func TestDependencyGraphCycles(t *testing.T) {
	g := buildCyclicGraph()

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"module:a.py", "module:b.py"}, cycles[0])
}

func TestDependencyGraphReachableTerminatesOnCycle(t *testing.T) {
	g := buildCyclicGraph()

	assert.Equal(t, []string{"module:a.py", "module:b.py", "module:c.py"}, g.Reachable("module:a.py"))
	assert.Empty(t, g.Reachable("module:c.py"))
	assert.Nil(t, g.Reachable("missing"))
}

func TestDependencyGraphInDegree(t *testing.T) {
	g := buildCyclicGraph()

	assert.Equal(t, 1, g.InDegree("module:a.py"))
	assert.Equal(t, 1, g.InDegree("module:c.py"))
	assert.Equal(t, 0, g.InDegree("missing"))
}

func TestDependencyGraphSurvivesJSON(t *testing.T) {
	data, err := json.Marshal(buildCyclicGraph())
	require.NoError(t, err)

	var decoded schema.DependencyGraph
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Len(t, decoded.Nodes, 3)
	assert.Len(t, decoded.Cycles(), 1)
	assert.Equal(t, 1, decoded.InDegree("module:c.py"))
}

func TestSelfLoopIsCycle(t *testing.T) {
	g := schema.NewDependencyGraph()
	g.AddEdge(schema.DependencyEdge{From: "x", To: "x", Kind: schema.CallEdge})
	assert.Equal(t, [][]string{{"x"}}, g.Cycles())
}
