package features

import (
	"sort"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/Emberfield/autodoc/internal/store"
)

// ProjectionOptions controls how the code graph is folded onto files.
type ProjectionOptions struct {
	// IncludeCalls adds CALLS edges to the IMPORTS weight.
	IncludeCalls bool
	// MaxDegree drops files with at least this many neighbouring files.
	// Zero disables the filter.
	MaxDegree int
	// Exclude holds gitignore-style patterns for paths kept out of clustering.
	Exclude []string
}

// Projection is the undirected, weighted file graph communities are
// detected on. Weight between two files is the number of entity-level
// relationships crossing them.
type Projection struct {
	// Files lists every File node, sorted. Excluded and god-object files are
	// included with no edges.
	Files      []string
	Excluded   []string
	GodObjects []string

	adj map[string]map[string]float64
	out map[string][]string
}

// Weight returns the edge weight between a and b.
func (p *Projection) Weight(a, b string) float64 {
	return p.adj[a][b]
}

// Neighbors returns the files adjacent to f, sorted.
func (p *Projection) Neighbors(f string) []string {
	out := make([]string, 0, len(p.adj[f]))
	for n := range p.adj[f] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// EdgeCount returns the number of weighted file pairs.
func (p *Projection) EdgeCount() int {
	n := 0
	for _, m := range p.adj {
		n += len(m)
	}
	return n / 2
}

// Dependencies returns the directed file graph behind the projection,
// file -> files it imports or calls into. Excluded files are left out;
// god objects are kept.
func (p *Projection) Dependencies() map[string][]string {
	return p.out
}

// Project folds nodes and edges onto a file graph.
func Project(nodes []*store.Node, edges []*store.Edge, opts ProjectionOptions) *Projection {
	fileOf := make(map[string]string, len(nodes))
	seen := make(map[string]bool)
	var files []string
	for _, n := range nodes {
		fileOf[n.ID] = n.FilePath
		if n.Kind == store.KindFile && !seen[n.FilePath] {
			seen[n.FilePath] = true
			files = append(files, n.FilePath)
		}
	}
	sort.Strings(files)

	p := &Projection{
		Files: files,
		adj:   make(map[string]map[string]float64),
		out:   make(map[string][]string),
	}

	skip := make(map[string]bool)
	if len(opts.Exclude) > 0 {
		m := ignore.CompileIgnoreLines(opts.Exclude...)
		for _, f := range files {
			if m.MatchesPath(f) {
				skip[f] = true
				p.Excluded = append(p.Excluded, f)
			}
		}
	}

	for _, e := range edges {
		if e.Rel != store.RelImports && !(opts.IncludeCalls && e.Rel == store.RelCalls) {
			continue
		}
		a, b := fileOf[e.FromID], fileOf[e.ToID]
		if a == "" || b == "" || a == b || skip[a] || skip[b] {
			continue
		}
		p.add(a, b, 1)
		p.out[a] = append(p.out[a], b)
	}

	if opts.MaxDegree > 0 {
		var gods []string
		for _, f := range files {
			if len(p.adj[f]) >= opts.MaxDegree {
				gods = append(gods, f)
			}
		}
		for _, f := range gods {
			for n := range p.adj[f] {
				delete(p.adj[n], f)
				if len(p.adj[n]) == 0 {
					delete(p.adj, n)
				}
			}
			delete(p.adj, f)
		}
		p.GodObjects = gods
	}
	return p
}

func (p *Projection) add(a, b string, w float64) {
	if p.adj[a] == nil {
		p.adj[a] = make(map[string]float64)
	}
	if p.adj[b] == nil {
		p.adj[b] = make(map[string]float64)
	}
	p.adj[a][b] += w
	p.adj[b][a] += w
}
