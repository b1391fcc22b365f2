// Package query answers read-only questions about a built code graph:
// dependencies, entry points, test coverage, structural patterns and
// per-module complexity.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Emberfield/autodoc/internal/logging"
	"github.com/Emberfield/autodoc/internal/store"
)

// ErrNotFound is returned when a node reference matches nothing.
var ErrNotFound = errors.New("node not found")

// Engine runs queries against a graph store.
type Engine struct {
	store  store.Graph
	logger *slog.Logger
}

// New creates an Engine reading from s.
func New(s store.Graph, logger *slog.Logger) *Engine {
	return &Engine{store: s, logger: logging.OrDiscard(logger)}
}

// Ref is a compact reference to a node in query results.
type Ref struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	FilePath string `json:"file_path" yaml:"file_path"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
}

func refOf(n *store.Node) Ref {
	return Ref{ID: n.ID, Name: n.Name, Kind: n.Kind, FilePath: n.FilePath, Line: n.LineStart}
}

// Resolve finds the node a user reference points to: a node ID, a file
// path, or an entity name. An ambiguous name resolves to the first match in
// file and line order.
func (e *Engine) Resolve(ctx context.Context, ref string) (*store.Node, error) {
	n, err := e.store.Node(ctx, ref)
	if err != nil {
		return nil, err
	}
	if n != nil {
		return n, nil
	}

	nodes, err := e.store.Nodes(ctx, store.NodeFilter{Kind: store.KindFile, FilePath: ref})
	if err != nil {
		return nil, err
	}
	if len(nodes) > 0 {
		return nodes[0], nil
	}

	nodes, err = e.store.Nodes(ctx, store.NodeFilter{Name: ref})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if len(nodes) > 1 {
		e.logger.Debug("ambiguous node reference, using first match", "ref", ref, "matches", len(nodes))
	}
	return nodes[0], nil
}

// snapshot is the whole graph loaded for one query.
type snapshot struct {
	nodes    []*store.Node
	byID     map[string]*store.Node
	contains map[string][]*store.Node // file ID -> entities
	methods  map[string][]*store.Node // class ID -> methods
	in       map[string]map[string]int
	out      map[string]map[string]int
}

func (s *snapshot) inDegree(id string, rels ...string) int {
	n := 0
	for _, r := range rels {
		n += s.in[id][r]
	}
	return n
}

func (s *snapshot) outDegree(id string, rels ...string) int {
	n := 0
	for _, r := range rels {
		n += s.out[id][r]
	}
	return n
}

func (e *Engine) load(ctx context.Context) (*snapshot, error) {
	nodes, err := e.store.Nodes(ctx, store.NodeFilter{})
	if err != nil {
		return nil, err
	}
	edges, err := e.store.Edges(ctx, store.EdgeFilter{})
	if err != nil {
		return nil, err
	}

	s := &snapshot{
		nodes:    nodes,
		byID:     make(map[string]*store.Node, len(nodes)),
		contains: make(map[string][]*store.Node),
		methods:  make(map[string][]*store.Node),
		in:       make(map[string]map[string]int),
		out:      make(map[string]map[string]int),
	}
	for _, n := range nodes {
		s.byID[n.ID] = n
	}
	for _, ed := range edges {
		if s.out[ed.FromID] == nil {
			s.out[ed.FromID] = make(map[string]int)
		}
		if s.in[ed.ToID] == nil {
			s.in[ed.ToID] = make(map[string]int)
		}
		s.out[ed.FromID][ed.Rel]++
		s.in[ed.ToID][ed.Rel]++

		to := s.byID[ed.ToID]
		if to == nil {
			continue
		}
		switch ed.Rel {
		case store.RelContains:
			s.contains[ed.FromID] = append(s.contains[ed.FromID], to)
		case store.RelHasMethod:
			s.methods[ed.FromID] = append(s.methods[ed.FromID], to)
		}
	}
	return s, nil
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FilePath != refs[j].FilePath {
			return refs[i].FilePath < refs[j].FilePath
		}
		if refs[i].Line != refs[j].Line {
			return refs[i].Line < refs[j].Line
		}
		return refs[i].ID < refs[j].ID
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
