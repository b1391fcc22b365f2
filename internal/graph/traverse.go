package graph

import (
	"sort"
	"strings"
)

// Direction selects which adjacency a traversal follows.
type Direction int

const (
	// Forward follows edges from dependent to dependency.
	Forward Direction = iota
	// Reverse follows edges from dependency to dependent.
	Reverse
)

func (g *Graph) neighbors(dir Direction) func(string) []string {
	if dir == Reverse {
		return func(n string) []string { return g.ReverseEdges[n] }
	}
	return func(n string) []string { return g.Edges[n] }
}

// BFS performs breadth-first search starting from the given node.
// Returns all nodes reachable from start in BFS order, start first.
// Each node is visited at most once, so cycles terminate.
func (g *Graph) BFS(start string, dir Direction) []string {
	getNeighbors := g.neighbors(dir)

	visited := make(map[string]struct{})
	result := []string{}
	queue := []string{start}
	visited[start] = struct{}{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, neighbor := range getNeighbors(current) {
			if _, seen := visited[neighbor]; !seen {
				visited[neighbor] = struct{}{}
				queue = append(queue, neighbor)
			}
		}
	}

	return result
}

// TransitiveClosure returns all nodes reachable from start (excluding start itself).
func (g *Graph) TransitiveClosure(start string) []string {
	return withoutStart(g.BFS(start, Forward), start)
}

// ReverseTransitiveClosure returns all nodes that can reach start (excluding start itself).
func (g *Graph) ReverseTransitiveClosure(start string) []string {
	return withoutStart(g.BFS(start, Reverse), start)
}

func withoutStart(all []string, start string) []string {
	if len(all) > 0 && all[0] == start {
		return all[1:]
	}
	return all
}

// Walk is the result of a depth-first walk with cycle detection.
type Walk struct {
	// Order lists reachable nodes in DFS preorder, excluding the start node.
	Order []string
	// Cycles lists each back edge found as a closed path, e.g. [a b a].
	Cycles [][]string
}

// DFSWithCycles walks depth-first from start using white/gray/black coloring.
// Nodes are visited once; every back edge to a node still on the stack is
// reported as a cycle instead of being followed.
func (g *Graph) DFSWithCycles(start string) Walk {
	const (
		white = 0 // unvisited
		gray  = 1 // in progress
		black = 2 // finished
	)

	color := make(map[string]int)
	var stack []string
	var w Walk

	var dfs func(node string)
	dfs = func(node string) {
		color[node] = gray
		stack = append(stack, node)

		for _, neighbor := range g.Edges[node] {
			switch color[neighbor] {
			case gray:
				// Back edge: the cycle is the stack suffix from neighbor.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == neighbor {
						cycle := append([]string{}, stack[i:]...)
						w.Cycles = append(w.Cycles, append(cycle, neighbor))
						break
					}
				}
			case white:
				w.Order = append(w.Order, neighbor)
				dfs(neighbor)
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
	}

	dfs(start)
	return w
}

// FindCycles returns every distinct cycle, each rotated to start at its
// smallest node and closed with that node again. Results are sorted.
func (g *Graph) FindCycles() [][]string {
	nodes := make([]string, 0, len(g.Edges))
	for n := range g.Edges {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	seen := make(map[string]bool)
	var out [][]string
	done := make(map[string]bool)
	for _, n := range nodes {
		if done[n] {
			continue
		}
		w := g.DFSWithCycles(n)
		done[n] = true
		for _, v := range w.Order {
			done[v] = true
		}
		for _, c := range w.Cycles {
			c = canonicalCycle(c)
			key := strings.Join(c, "\x00")
			if !seen[key] {
				seen[key] = true
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Join(out[i], "\x00") < strings.Join(out[j], "\x00")
	})
	return out
}

// canonicalCycle rotates a closed cycle [a b c a] so it starts at its
// smallest node.
func canonicalCycle(c []string) []string {
	ring := c[:len(c)-1]
	min := 0
	for i, n := range ring {
		if n < ring[min] {
			min = i
		}
	}
	out := make([]string, 0, len(c))
	out = append(out, ring[min:]...)
	out = append(out, ring[:min]...)
	return append(out, ring[min])
}
