package query

import (
	"context"

	"github.com/Emberfield/autodoc/internal/graph"
	"github.com/Emberfield/autodoc/internal/store"
)

// Dependencies lists what a node depends on and what depends on it, over
// IMPORTS and CALLS edges.
type Dependencies struct {
	Node       Ref   `json:"node" yaml:"node"`
	Transitive bool  `json:"transitive" yaml:"transitive"`
	Imports    []Ref `json:"imports" yaml:"imports"`
	ImportedBy []Ref `json:"imported_by" yaml:"imported_by"`
}

// Dependencies returns the direct neighbors of ref, or with transitive the
// full closure in both directions. Traversal is breadth-first with a visited
// set, so cycles terminate.
func (e *Engine) Dependencies(ctx context.Context, ref string, transitive bool) (*Dependencies, error) {
	n, err := e.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	g, err := graph.BuildFromStore(ctx, e.store, graph.DependencyRels...)
	if err != nil {
		return nil, err
	}

	var fwd, rev []string
	if transitive {
		fwd = g.TransitiveClosure(n.ID)
		rev = g.ReverseTransitiveClosure(n.ID)
	} else {
		fwd = g.Successors(n.ID)
		rev = g.Predecessors(n.ID)
	}

	imports, err := e.refs(ctx, fwd)
	if err != nil {
		return nil, err
	}
	importedBy, err := e.refs(ctx, rev)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Node:       refOf(n),
		Transitive: transitive,
		Imports:    imports,
		ImportedBy: importedBy,
	}, nil
}

func (e *Engine) refs(ctx context.Context, ids []string) ([]Ref, error) {
	out := []Ref{}
	if len(ids) == 0 {
		return out, nil
	}
	nodes, err := e.store.Nodes(ctx, store.NodeFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		out = append(out, refOf(n))
	}
	sortRefs(out)
	return out, nil
}
