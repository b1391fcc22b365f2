// Package metrics scores file centrality in the code graph. Feature
// detection uses it to pick the files that represent a feature best.
package metrics

import (
	"math"
	"sort"
)

// PageRankConfig holds algorithm parameters for PageRank computation.
type PageRankConfig struct {
	// Damping is the probability of following a link. Standard value is 0.85.
	Damping float64

	// MaxIterations is the maximum number of iterations before stopping.
	MaxIterations int

	// Tolerance is the convergence threshold on the largest per-node change.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		Damping:       0.85,
		MaxIterations: 100,
		Tolerance:     0.0001,
	}
}

// PageRankResult contains the PageRank computation results.
type PageRankResult struct {
	// Scores maps node IDs to their PageRank scores
	Scores map[string]float64

	// Iterations is the number of iterations performed
	Iterations int

	// Converged indicates whether the algorithm converged within MaxIterations
	Converged bool
}

// PageRank scores every node of graph, given as node -> outgoing targets.
// Nodes that only appear as targets are included. Scores sum to 1.
func PageRank(graph map[string][]string, cfg PageRankConfig) PageRankResult {
	nodes := collectNodes(graph)
	n := len(nodes)
	if n == 0 {
		return PageRankResult{Converged: true}
	}

	index := make(map[string]int, n)
	for i, node := range nodes {
		index[node] = i
	}
	out := make([][]int, n)
	incoming := make([][]int, n)
	for src, targets := range graph {
		i := index[src]
		seen := make(map[int]bool, len(targets))
		for _, t := range targets {
			j := index[t]
			if seen[j] {
				continue
			}
			seen[j] = true
			out[i] = append(out[i], j)
			incoming[j] = append(incoming[j], i)
		}
	}

	pr := make([]float64, n)
	for i := range pr {
		pr[i] = 1.0 / float64(n)
	}

	result := PageRankResult{}
	next := make([]float64, n)
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		// dangling nodes spread their rank evenly
		dangling := 0.0
		for i := range pr {
			if len(out[i]) == 0 {
				dangling += pr[i]
			}
		}
		base := (1.0-cfg.Damping)/float64(n) + cfg.Damping*dangling/float64(n)

		maxDelta := 0.0
		for j := range next {
			v := base
			for _, i := range incoming[j] {
				v += cfg.Damping * pr[i] / float64(len(out[i]))
			}
			next[j] = v
			maxDelta = math.Max(maxDelta, math.Abs(v-pr[j]))
		}
		pr, next = next, pr
		result.Iterations = iter + 1

		if maxDelta < cfg.Tolerance {
			result.Converged = true
			break
		}
	}

	result.Scores = make(map[string]float64, n)
	for i, node := range nodes {
		result.Scores[node] = pr[i]
	}
	return result
}

func collectNodes(graph map[string][]string) []string {
	set := make(map[string]struct{}, len(graph))
	for node, targets := range graph {
		set[node] = struct{}{}
		for _, t := range targets {
			set[t] = struct{}{}
		}
	}
	nodes := make([]string, 0, len(set))
	for node := range set {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

// NodeScore pairs a node ID with its score
type NodeScore struct {
	Node  string  `json:"node"`
	Score float64 `json:"score"`
}

// Rank orders nodes by score, highest first; ties go to the smaller name.
// Nodes missing from scores rank as zero.
func Rank(nodes []string, scores map[string]float64) []NodeScore {
	out := make([]NodeScore, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeScore{Node: n, Score: scores[n]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// TopN returns the n highest-ranked of nodes.
func TopN(nodes []string, scores map[string]float64, n int) []NodeScore {
	if n <= 0 {
		return nil
	}
	ranked := Rank(nodes, scores)
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
