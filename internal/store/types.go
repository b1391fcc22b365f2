package store

// Node kinds.
const (
	KindFile     = "File"
	KindFunction = "Function"
	KindClass    = "Class"
	KindMethod   = "Method"
)

// Edge relations.
const (
	RelContains  = "CONTAINS"
	RelHasMethod = "HAS_METHOD"
	RelImports   = "IMPORTS"
	RelCalls     = "CALLS"
)

// Node is a vertex of the code graph: a file or a code entity.
type Node struct {
	ID         string   `json:"id" yaml:"id"`
	Kind       string   `json:"kind" yaml:"kind"`
	Name       string   `json:"name" yaml:"name"`
	FilePath   string   `json:"file_path" yaml:"file_path"`
	LineStart  int      `json:"line_start,omitempty" yaml:"line_start,omitempty"`
	LineEnd    *int     `json:"line_end,omitempty" yaml:"line_end,omitempty"`
	Docstring  string   `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	Decorators []string `json:"decorators,omitempty" yaml:"decorators,omitempty"`
	Visibility string   `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	IsTest     bool     `json:"is_test,omitempty" yaml:"is_test,omitempty"`
	Complexity int      `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	Summary    string   `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Edge is a typed, directed relationship between two nodes.
type Edge struct {
	FromID string `json:"from_id" yaml:"from_id"`
	ToID   string `json:"to_id" yaml:"to_id"`
	Rel    string `json:"rel" yaml:"rel"`
}

// NodeFilter selects nodes. Empty fields match everything.
type NodeFilter struct {
	IDs      []string
	Kind     string
	FilePath string
	Name     string
}

// EdgeFilter selects edges. Empty fields match everything.
type EdgeFilter struct {
	FromID string
	ToID   string
	Rels   []string
}

// Stats holds graph size counters.
type Stats struct {
	Nodes       int            `json:"nodes" yaml:"nodes"`
	Edges       int            `json:"edges" yaml:"edges"`
	NodesByKind map[string]int `json:"nodes_by_kind" yaml:"nodes_by_kind"`
	EdgesByRel  map[string]int `json:"edges_by_rel" yaml:"edges_by_rel"`
}
