package packs

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/Emberfield/autodoc/internal/graph"
	"github.com/Emberfield/autodoc/internal/logging"
)

// Registry holds the valid packs of a configuration, their compiled
// matchers, and the dependency graph between them.
type Registry struct {
	packs    map[string]*Pack
	order    []string
	matchers map[string]*ignore.GitIgnore
	deps     *graph.Graph
	warnings []string
	logger   *slog.Logger
}

// NewRegistry validates and indexes packs. Invalid packs are skipped with a
// warning rather than failing the load:
//   - a pack with no name, or a name already registered
//   - a pack with any malformed file pattern
//
// Unknown security levels fall back to normal, and dependencies on packs that
// don't exist are ignored. Both are reported as warnings, as is every
// dependency cycle.
func NewRegistry(packs []Pack, logger *slog.Logger) *Registry {
	r := &Registry{
		packs:    make(map[string]*Pack, len(packs)),
		matchers: make(map[string]*ignore.GitIgnore, len(packs)),
		deps:     graph.New(),
		logger:   logging.OrDiscard(logger),
	}

	for i := range packs {
		p := packs[i]
		if err := r.add(&p); err != nil {
			r.warn("skipping pack", "pack", p.Name, "reason", err.Error())
		}
	}
	r.linkDependencies(true)
	for _, cycle := range r.deps.FindCycles() {
		r.warn("pack dependency cycle", "cycle", joinArrow(cycle))
	}
	return r
}

func (r *Registry) warn(msg string, args ...any) {
	r.logger.Warn(msg, args...)
	line := msg
	for i := 0; i+1 < len(args); i += 2 {
		line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
	}
	r.warnings = append(r.warnings, line)
}

func (r *Registry) add(p *Pack) error {
	if p.Name == "" {
		return fmt.Errorf("pack has no name")
	}
	if _, dup := r.packs[p.Name]; dup {
		return fmt.Errorf("duplicate pack name %q", p.Name)
	}

	m, err := compilePatterns(p.FilePatterns)
	if err != nil {
		return err
	}

	if p.SecurityLevel == "" {
		p.SecurityLevel = SecurityNormal
	} else if !p.SecurityLevel.Valid() {
		r.warn("unknown security level, using normal", "pack", p.Name, "level", string(p.SecurityLevel))
		p.SecurityLevel = SecurityNormal
	}

	r.packs[p.Name] = p
	r.order = append(r.order, p.Name)
	r.matchers[p.Name] = m
	r.deps.AddNode(p.Name)
	return nil
}

func compilePatterns(patterns []string) (*ignore.GitIgnore, error) {
	lines := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		if err := validatePattern(pat); err != nil {
			return nil, err
		}
		lines = append(lines, normalizePattern(pat))
	}
	return ignore.CompileIgnoreLines(lines...), nil
}

func (r *Registry) linkDependencies(report bool) {
	for _, name := range r.order {
		for _, dep := range r.packs[name].Dependencies {
			if _, ok := r.packs[dep]; !ok {
				if !report {
					continue
				}
				r.warn("unknown pack dependency ignored", "pack", name, "dependency", dep)
				continue
			}
			r.deps.AddEdge(name, dep)
		}
	}
}

// Warnings returns the problems found while loading and resolving packs.
func (r *Registry) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// Len returns the number of registered packs.
func (r *Registry) Len() int {
	return len(r.order)
}

// Get returns a pack by name.
func (r *Registry) Get(name string) (*Pack, bool) {
	p, ok := r.packs[name]
	return p, ok
}

// Names returns pack names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	Tag           string
	SecurityLevel SecurityLevel
}

// List returns packs in registration order, filtered.
func (r *Registry) List(f ListFilter) []*Pack {
	var out []*Pack
	for _, name := range r.order {
		p := r.packs[name]
		if f.Tag != "" && !p.HasTag(f.Tag) {
			continue
		}
		if f.SecurityLevel != "" && p.SecurityLevel != f.SecurityLevel {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Matches reports whether path belongs to the named pack.
func (r *Registry) Matches(name, path string) bool {
	m, ok := r.matchers[name]
	if !ok {
		return false
	}
	return m.MatchesPath(NormalizePath(path))
}

// PacksForFile returns the names of every pack containing path, in
// registration order.
func (r *Registry) PacksForFile(path string) []string {
	p := NormalizePath(path)
	var out []string
	for _, name := range r.order {
		if r.matchers[name].MatchesPath(p) {
			out = append(out, name)
		}
	}
	return out
}

// Files returns the candidates that belong to the named pack, sorted.
func (r *Registry) Files(name string, candidates []string) ([]string, error) {
	if _, ok := r.packs[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}
	var out []string
	for _, c := range candidates {
		if r.Matches(name, c) {
			out = append(out, NormalizePath(c))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Resolution is the result of a dependency lookup.
type Resolution struct {
	Pack         string   `json:"pack" yaml:"pack"`
	Transitive   bool     `json:"transitive" yaml:"transitive"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Warnings     []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Deps returns a pack's dependencies. Without transitive, that is the
// declared list (unknown names removed). With transitive, the closure is
// walked depth-first with a visited set; each dependency cycle met on the way
// is reported as a warning and not followed.
func (r *Registry) Deps(name string, transitive bool) (*Resolution, error) {
	if _, ok := r.packs[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}

	res := &Resolution{Pack: name, Transitive: transitive, Dependencies: []string{}}
	if !transitive {
		res.Dependencies = append(res.Dependencies, r.deps.Successors(name)...)
		return res, nil
	}

	walk := r.deps.DFSWithCycles(name)
	res.Dependencies = append(res.Dependencies, walk.Order...)
	for _, cycle := range walk.Cycles {
		msg := fmt.Sprintf("dependency cycle: %s", joinArrow(cycle))
		r.logger.Warn("pack dependency cycle", "pack", name, "cycle", joinArrow(cycle))
		res.Warnings = append(res.Warnings, msg)
	}
	return res, nil
}

// Dependents returns every pack that depends on name, directly or
// transitively, in breadth-first order.
func (r *Registry) Dependents(name string) []string {
	if _, ok := r.packs[name]; !ok {
		return nil
	}
	return r.deps.ReverseTransitiveClosure(name)
}

// Packs returns copies of all registered packs in registration order.
func (r *Registry) Packs() []Pack {
	out := make([]Pack, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.packs[name])
	}
	return out
}

func joinArrow(parts []string) string {
	return strings.Join(parts, " -> ")
}
