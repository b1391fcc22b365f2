package features

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("autodoc.features")

// AlgorithmLouvain names the community detection algorithm on results.
const AlgorithmLouvain = "louvain"

// Louvain defaults.
const (
	DefaultResolution = 1.0
	DefaultMaxPasses  = 100
	DefaultMaxLevels  = 20
	// minGain is the smallest modularity gain that counts as a move.
	minGain = 1e-12
)

// LouvainOptions configures Louvain.
type LouvainOptions struct {
	// Resolution scales the null model. Higher values give smaller communities.
	Resolution float64
	// Seed drives the node visiting order.
	Seed int64
	// MaxPasses bounds local-moving passes per level.
	MaxPasses int
	// MaxLevels bounds aggregation levels.
	MaxLevels int
}

// Validate applies defaults for unset or invalid values.
func (o *LouvainOptions) Validate() {
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.MaxPasses <= 0 {
		o.MaxPasses = DefaultMaxPasses
	}
	if o.MaxLevels <= 0 {
		o.MaxLevels = DefaultMaxLevels
	}
}

// Partition is the outcome of Louvain on a projection.
type Partition struct {
	// Community maps each file to a community index in [0, Count).
	Community map[string]int
	Count     int
	// Modularity of the final partition, clamped to [0, 1].
	Modularity float64
	// Levels is the number of aggregation levels that moved at least one node.
	Levels int
}

// wgraph is a weighted undirected graph over dense indices. Self loops hold
// twice the internal weight so that a node's degree is the sum of its row.
type wgraph struct {
	adj    [][]wedge
	degree []float64
	total  float64 // 2m
}

type wedge struct {
	to int
	w  float64
}

func newWGraph(n int, weights []map[int]float64) *wgraph {
	g := &wgraph{adj: make([][]wedge, n), degree: make([]float64, n)}
	for i := 0; i < n; i++ {
		for j, w := range weights[i] {
			g.adj[i] = append(g.adj[i], wedge{to: j, w: w})
			g.degree[i] += w
		}
		sort.Slice(g.adj[i], func(a, b int) bool { return g.adj[i][a].to < g.adj[i][b].to })
		g.total += g.degree[i]
	}
	return g
}

// Louvain partitions p into communities by greedy modularity optimisation
// with multi-level aggregation. Every file of p is assigned exactly once.
func Louvain(ctx context.Context, p *Projection, opts LouvainOptions) (*Partition, error) {
	opts.Validate()

	ctx, span := tracer.Start(ctx, "features.Louvain",
		trace.WithAttributes(
			attribute.Int("node_count", len(p.Files)),
			attribute.Int("edge_count", p.EdgeCount()),
			attribute.Float64("resolution", opts.Resolution),
			attribute.Int64("seed", opts.Seed),
		),
	)
	defer span.End()

	index := make(map[string]int, len(p.Files))
	for i, f := range p.Files {
		index[f] = i
	}
	weights := make([]map[int]float64, len(p.Files))
	for i, f := range p.Files {
		weights[i] = make(map[int]float64)
		for n, w := range p.adj[f] {
			weights[i][index[n]] = w
		}
	}
	base := newWGraph(len(p.Files), weights)

	// membership of each original node in the current level's nodes
	member := make([]int, len(p.Files))
	for i := range member {
		member[i] = i
	}

	if base.total == 0 {
		span.AddEvent("no_edges")
		return buildPartition(p.Files, member, base, opts.Resolution, 0), nil
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	g := base
	levels := 0
	for levels < opts.MaxLevels {
		comm, moved, err := localMoves(ctx, g, opts, rng)
		if err != nil {
			span.AddEvent("cancelled", trace.WithAttributes(attribute.Int("levels_completed", levels)))
			return nil, err
		}
		if !moved {
			break
		}
		levels++

		comm, count := renumber(comm)
		for i := range member {
			member[i] = comm[member[i]]
		}
		if count == len(g.adj) {
			break
		}
		g = aggregate(g, comm, count)
	}

	part := buildPartition(p.Files, member, base, opts.Resolution, levels)
	span.SetAttributes(
		attribute.Int("levels", levels),
		attribute.Int("communities_found", part.Count),
		attribute.Float64("modularity", part.Modularity),
		attribute.String("algorithm", AlgorithmLouvain),
	)
	return part, nil
}

// localMoves runs passes of single-node moves on g until no node moves.
func localMoves(ctx context.Context, g *wgraph, opts LouvainOptions, rng *rand.Rand) ([]int, bool, error) {
	n := len(g.adj)
	comm := make([]int, n)
	tot := make([]float64, n)
	for i := 0; i < n; i++ {
		comm[i] = i
		tot[i] = g.degree[i]
	}

	order := rng.Perm(n)
	links := make(map[int]float64)
	var candidates []int
	movedAny := false

	for pass := 0; pass < opts.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		moved := false
		for _, i := range order {
			ki := g.degree[i]
			cur := comm[i]

			for k := range links {
				delete(links, k)
			}
			candidates = candidates[:0]
			for _, e := range g.adj[i] {
				if e.to == i {
					continue
				}
				c := comm[e.to]
				if _, ok := links[c]; !ok {
					candidates = append(candidates, c)
				}
				links[c] += e.w
			}

			// take i out of its community
			tot[cur] -= ki
			best := cur
			bestGain := links[cur] - opts.Resolution*tot[cur]*ki/g.total

			sort.Ints(candidates)
			for _, c := range candidates {
				if c == cur {
					continue
				}
				gain := links[c] - opts.Resolution*tot[c]*ki/g.total
				if gain > bestGain+minGain {
					best, bestGain = c, gain
				}
			}

			tot[best] += ki
			if best != cur {
				comm[i] = best
				moved = true
				movedAny = true
			}
		}
		if !moved {
			break
		}
	}
	return comm, movedAny, nil
}

// renumber maps community labels onto [0, count) in order of first use.
func renumber(comm []int) ([]int, int) {
	ids := make(map[int]int)
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}

// aggregate collapses each community of g into a single node.
func aggregate(g *wgraph, comm []int, count int) *wgraph {
	weights := make([]map[int]float64, count)
	for c := range weights {
		weights[c] = make(map[int]float64)
	}
	for i, edges := range g.adj {
		for _, e := range edges {
			weights[comm[i]][comm[e.to]] += e.w
		}
	}
	return newWGraph(count, weights)
}

// buildPartition assigns final community indices ordered by size descending,
// then by first file path, and scores the partition on the base graph.
func buildPartition(files []string, member []int, base *wgraph, resolution float64, levels int) *Partition {
	groups := make(map[int][]int)
	for i, c := range member {
		groups[c] = append(groups[c], i)
	}
	labels := make([]int, 0, len(groups))
	for c := range groups {
		labels = append(labels, c)
	}
	sort.Slice(labels, func(a, b int) bool {
		ga, gb := groups[labels[a]], groups[labels[b]]
		if len(ga) != len(gb) {
			return len(ga) > len(gb)
		}
		return files[ga[0]] < files[gb[0]]
	})

	part := &Partition{
		Community: make(map[string]int, len(files)),
		Count:     len(labels),
		Levels:    levels,
	}
	final := make([]int, len(files))
	for id, c := range labels {
		for _, i := range groups[c] {
			part.Community[files[i]] = id
			final[i] = id
		}
	}
	part.Modularity = clamp01(modularity(base, final, len(labels), resolution))
	return part
}

// modularity computes Q = Σ_c [in_c/2m − γ(tot_c/2m)²].
func modularity(g *wgraph, comm []int, count int, resolution float64) float64 {
	if g.total == 0 {
		return 0
	}
	in := make([]float64, count)
	tot := make([]float64, count)
	for i, edges := range g.adj {
		tot[comm[i]] += g.degree[i]
		for _, e := range edges {
			if comm[e.to] == comm[i] {
				in[comm[i]] += e.w
			}
		}
	}
	q := 0.0
	for c := 0; c < count; c++ {
		q += in[c]/g.total - resolution*(tot[c]/g.total)*(tot[c]/g.total)
	}
	return q
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
