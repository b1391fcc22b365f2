// Package graph holds an in-memory adjacency view of a directed graph: the
// dependency edges of the code graph, or the dependency edges between packs.
package graph

import (
	"context"

	"github.com/Emberfield/autodoc/internal/store"
)

// Graph represents an in-memory directed graph.
type Graph struct {
	// Adjacency list: node -> list of nodes it depends on
	Edges map[string][]string
	// Reverse adjacency: node -> list of nodes that depend on it
	ReverseEdges map[string][]string

	seen map[[2]string]struct{}
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Edges:        make(map[string][]string),
		ReverseEdges: make(map[string][]string),
		seen:         make(map[[2]string]struct{}),
	}
}

// DependencyRels are the relations that express "from depends on to".
var DependencyRels = []string{store.RelImports, store.RelCalls}

// BuildFromStore loads the edges of the given relations from the store.
// With no relations, DependencyRels are used.
func BuildFromStore(ctx context.Context, s store.Graph, rels ...string) (*Graph, error) {
	if len(rels) == 0 {
		rels = DependencyRels
	}
	edges, err := s.Edges(ctx, store.EdgeFilter{Rels: rels})
	if err != nil {
		return nil, err
	}

	g := New()
	for _, e := range edges {
		g.AddEdge(e.FromID, e.ToID)
	}
	return g, nil
}

// AddNode registers a node with no edges. Existing nodes are left untouched.
func (g *Graph) AddNode(node string) {
	if _, ok := g.Edges[node]; !ok {
		g.Edges[node] = []string{}
	}
	if _, ok := g.ReverseEdges[node]; !ok {
		g.ReverseEdges[node] = []string{}
	}
}

// AddEdge adds a directed edge. Parallel edges collapse into one.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)

	key := [2]string{from, to}
	if _, dup := g.seen[key]; dup {
		return
	}
	g.seen[key] = struct{}{}

	g.Edges[from] = append(g.Edges[from], to)
	g.ReverseEdges[to] = append(g.ReverseEdges[to], from)
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.Edges)
}

// Successors returns nodes that this node depends on.
func (g *Graph) Successors(node string) []string {
	return g.Edges[node]
}

// Predecessors returns nodes that depend on this node.
func (g *Graph) Predecessors(node string) []string {
	return g.ReverseEdges[node]
}
