// Package builder turns parsed entity records into the code graph.
//
// A build is clear-then-insert: the store is emptied, then every File and
// entity node and every CONTAINS, HAS_METHOD, IMPORTS and CALLS edge is
// written. Running a build twice on the same input yields the same graph.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Emberfield/autodoc/internal/entity"
	"github.com/Emberfield/autodoc/internal/logging"
	"github.com/Emberfield/autodoc/internal/store"
)

var tracer = otel.Tracer("autodoc.builder")

// Options configures a Builder.
type Options struct {
	// Calls detects CALLS edges. Nil disables them.
	Calls CallDetector
	// Commit records a history commit after the build on versioned stores.
	Commit bool
	Logger *slog.Logger
}

// Builder writes a code graph into a store.
type Builder struct {
	store  store.Graph
	calls  CallDetector
	commit bool
	logger *slog.Logger
}

// New creates a Builder writing to s.
func New(s store.Graph, opts Options) *Builder {
	return &Builder{
		store:  s,
		calls:  opts.Calls,
		commit: opts.Commit,
		logger: logging.OrDiscard(opts.Logger),
	}
}

// Result summarizes a build.
type Result struct {
	Files             int            `json:"files" yaml:"files"`
	Entities          int            `json:"entities" yaml:"entities"`
	Edges             int            `json:"edges" yaml:"edges"`
	EdgesByRel        map[string]int `json:"edges_by_rel" yaml:"edges_by_rel"`
	SkippedFiles      []string       `json:"skipped_files,omitempty" yaml:"skipped_files,omitempty"`
	SkippedEntities   int            `json:"skipped_entities" yaml:"skipped_entities"`
	UnresolvedImports int            `json:"unresolved_imports" yaml:"unresolved_imports"`
	Commit            string         `json:"commit,omitempty" yaml:"commit,omitempty"`
	Duration          time.Duration  `json:"duration" yaml:"duration"`
}

// committer is implemented by stores that keep graph history.
type committer interface {
	Commit(ctx context.Context, message string) (string, error)
}

// Build clears the store and writes the graph for doc.
// Files that failed upstream and malformed entities are skipped with a
// warning. A cancelled build may leave a cleared, partial graph.
func (b *Builder) Build(ctx context.Context, doc *entity.Document) (*Result, error) {
	ctx, span := tracer.Start(ctx, "builder.Build")
	defer span.End()
	start := time.Now()

	res := &Result{EdgesByRel: make(map[string]int)}
	for _, s := range doc.Skipped {
		b.logger.Warn("skipping malformed entity record", "line", s.Line, "reason", s.Reason)
		res.SkippedEntities++
	}

	g := b.plan(ctx, doc, res)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("files", res.Files),
		attribute.Int("entities", res.Entities),
		attribute.Int("edges", len(g.edges)),
	)

	if err := b.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear graph: %w", err)
	}
	if err := b.store.InsertNodes(ctx, g.nodes); err != nil {
		return nil, fmt.Errorf("insert nodes: %w", err)
	}
	if err := b.store.InsertEdges(ctx, g.edges); err != nil {
		return nil, fmt.Errorf("insert edges: %w", err)
	}

	res.Edges = len(g.edges)
	for _, e := range g.edges {
		res.EdgesByRel[e.Rel]++
	}

	if c, ok := b.store.(committer); ok && b.commit {
		msg := fmt.Sprintf("graph build: %d files, %d entities, %d edges", res.Files, res.Entities, res.Edges)
		hash, err := c.Commit(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("commit graph: %w", err)
		}
		res.Commit = hash
	}

	res.Duration = time.Since(start)
	b.logger.Info("graph built",
		"files", res.Files,
		"entities", res.Entities,
		"edges", res.Edges,
		"unresolved_imports", res.UnresolvedImports,
		"duration", res.Duration)
	return res, nil
}

// planned is the in-memory graph a build writes.
type planned struct {
	nodes    []*store.Node
	edges    []*store.Edge
	edgeSeen map[store.Edge]bool
}

func (p *planned) addEdge(from, to, rel string) {
	e := store.Edge{FromID: from, ToID: to, Rel: rel}
	if from == to || p.edgeSeen[e] {
		return
	}
	p.edgeSeen[e] = true
	p.edges = append(p.edges, &e)
}

// built pairs an accepted entity with its node ID.
type built struct {
	e  *entity.Entity
	id string
}

func (b *Builder) plan(ctx context.Context, doc *entity.Document, res *Result) *planned {
	p := &planned{edgeSeen: make(map[store.Edge]bool)}
	fileMeta := doc.FileIndex()

	failed := make(map[string]bool)
	for _, f := range doc.Files {
		if f.Error != "" {
			b.logger.Warn("skipping file that failed to parse", "file", f.Path, "error", f.Error)
			failed[f.Path] = true
			res.SkippedFiles = append(res.SkippedFiles, f.Path)
		}
	}

	// Entities, validated and de-duplicated.
	var ents []built
	ids := make(map[string]bool)
	for i := range doc.Entities {
		e := doc.Entities[i]
		if e.Kind == entity.KindFunction && e.ParentClass != "" {
			e.Kind = entity.KindMethod
		}
		if err := e.Validate(); err != nil {
			b.logger.Warn("skipping malformed entity", "error", err)
			res.SkippedEntities++
			continue
		}
		if failed[e.FilePath] {
			continue
		}
		id := NodeID(e.Kind, e.FilePath, e.Name, e.LineNumber)
		if ids[id] {
			b.logger.Warn("skipping duplicate entity", "name", e.Name, "file", e.FilePath, "line", e.LineNumber)
			res.SkippedEntities++
			continue
		}
		ids[id] = true
		ents = append(ents, built{e: &e, id: id})
	}

	// Files: every non-failed declared file plus every file holding an entity.
	fileSet := make(map[string]bool)
	for _, f := range doc.Files {
		if !failed[f.Path] && f.Path != "" {
			fileSet[f.Path] = true
		}
	}
	for _, be := range ents {
		fileSet[be.e.FilePath] = true
	}
	files := make([]string, 0, len(fileSet))
	for f := range fileSet {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, f := range files {
		n := &store.Node{
			ID:       FileID(f),
			Kind:     store.KindFile,
			Name:     path.Base(f),
			FilePath: f,
			IsTest:   entity.IsTestPath(f),
		}
		if meta, ok := fileMeta[f]; ok {
			n.Summary = meta.Summary
		}
		p.nodes = append(p.nodes, n)
	}
	for _, be := range ents {
		p.nodes = append(p.nodes, entityNode(be))
		p.addEdge(FileID(be.e.FilePath), be.id, store.RelContains)
	}
	res.Files = len(files)
	res.Entities = len(ents)

	linkMethods(p, ents)
	imported := b.linkImports(p, files, fileMeta, res)
	if b.calls != nil {
		b.linkCalls(ctx, p, ents, imported)
	}
	return p
}

func entityNode(be built) *store.Node {
	e := be.e
	n := &store.Node{
		ID:         be.id,
		Name:       e.Name,
		FilePath:   e.FilePath,
		LineStart:  e.LineNumber,
		LineEnd:    e.EndLine,
		Docstring:  e.Docstring,
		Decorators: e.Decorators,
		Visibility: e.Visibility,
		IsTest:     e.IsTest(),
		Complexity: entity.EstimateComplexity(e),
	}
	switch e.Kind {
	case entity.KindClass:
		n.Kind = store.KindClass
	case entity.KindMethod:
		n.Kind = store.KindMethod
	default:
		n.Kind = store.KindFunction
	}
	if n.Visibility == "" {
		n.Visibility = "public"
		if strings.HasPrefix(e.Name, "_") && !strings.HasPrefix(e.Name, "__") {
			n.Visibility = "private"
		}
	}
	return n
}

// linkMethods emits HAS_METHOD from each method's class: the class named by
// parent_class in the same file, or else the innermost class whose line span
// encloses the method.
func linkMethods(p *planned, ents []built) {
	classesByFile := make(map[string][]built)
	for _, be := range ents {
		if be.e.Kind == entity.KindClass {
			classesByFile[be.e.FilePath] = append(classesByFile[be.e.FilePath], be)
		}
	}

	for _, be := range ents {
		if be.e.Kind != entity.KindMethod {
			continue
		}
		var owner *built
		for i, c := range classesByFile[be.e.FilePath] {
			named := be.e.ParentClass != "" && c.e.Name == be.e.ParentClass
			nested := c.e.Contains(be.e)
			if !named && !nested {
				continue
			}
			if be.e.ParentClass != "" && !named {
				continue
			}
			cand := &classesByFile[be.e.FilePath][i]
			if owner == nil || (nested && cand.e.LineNumber > owner.e.LineNumber) {
				owner = cand
			}
		}
		if owner != nil {
			p.addEdge(owner.id, be.id, store.RelHasMethod)
		}
	}
}

// linkImports emits IMPORTS between files. Unresolved imports are dropped.
// It returns the resolved targets of each file.
func (b *Builder) linkImports(p *planned, files []string, meta map[string]*entity.File, res *Result) map[string]map[string]bool {
	resolver := NewImportResolver(files)
	imported := make(map[string]map[string]bool)

	for _, f := range files {
		m, ok := meta[f]
		if !ok {
			continue
		}
		for _, stmt := range m.Imports {
			target, ok := resolver.Resolve(f, stmt)
			if !ok {
				res.UnresolvedImports++
				b.logger.Debug("unresolved import", "file", f, "import", stmt)
				continue
			}
			if imported[f] == nil {
				imported[f] = make(map[string]bool)
			}
			imported[f][target] = true
			p.addEdge(FileID(f), FileID(target), store.RelImports)
		}
	}
	return imported
}

// linkCalls emits CALLS from each entity to the known entities it appears to
// call. A called name binds to same-file entities first, then to entities in
// files the caller's file imports, then to a unique entity anywhere.
// Ambiguous names are dropped.
func (b *Builder) linkCalls(ctx context.Context, p *planned, ents []built, imported map[string]map[string]bool) {
	byName := make(map[string][]built)
	for _, be := range ents {
		byName[be.e.Name] = append(byName[be.e.Name], be)
	}

	for _, caller := range ents {
		if ctx.Err() != nil {
			return
		}
		names, err := b.calls.CalledNames(ctx, caller.e)
		if err != nil {
			b.logger.Warn("call detection failed", "entity", caller.e.Name, "file", caller.e.FilePath, "error", err)
			continue
		}
		for _, name := range names {
			for _, target := range bindCall(caller, byName[name], imported[caller.e.FilePath]) {
				p.addEdge(caller.id, target, store.RelCalls)
			}
		}
	}
}

func bindCall(caller built, candidates []built, imports map[string]bool) []string {
	var local, viaImport []string
	for _, c := range candidates {
		if c.id == caller.id {
			continue
		}
		if c.e.FilePath == caller.e.FilePath {
			local = append(local, c.id)
		} else if imports[c.e.FilePath] {
			viaImport = append(viaImport, c.id)
		}
	}
	switch {
	case len(local) > 0:
		return local
	case len(viaImport) > 0:
		return viaImport
	case len(candidates) == 1 && candidates[0].id != caller.id:
		return []string{candidates[0].id}
	}
	return nil
}
