// Package entity defines the parsed code entity records consumed by the graph builder.
// Records come from an upstream parser as JSON, JSON Lines or YAML. Decoding is
// forward compatible: unknown fields are ignored.
package entity

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the type of a code entity.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindMethod   Kind = "method"
)

// Entity is one parsed code element.
type Entity struct {
	Name        string   `json:"name" yaml:"name"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	FilePath    string   `json:"file_path" yaml:"file_path"`
	LineNumber  int      `json:"line_number" yaml:"line_number"`
	EndLine     *int     `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	Docstring   string   `json:"docstring,omitempty" yaml:"docstring,omitempty"`
	ParentClass string   `json:"parent_class,omitempty" yaml:"parent_class,omitempty"`
	Decorators  []string `json:"decorators,omitempty" yaml:"decorators,omitempty"`
	Code        string   `json:"code,omitempty" yaml:"code,omitempty"`
	Visibility  string   `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Complexity  int      `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	IsAsync     bool     `json:"is_async,omitempty" yaml:"is_async,omitempty"`
	Parameters  []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// File describes a parsed source file. Error is set when the upstream parser
// failed on the file; such files are skipped by the builder.
type File struct {
	Path     string   `json:"path" yaml:"path"`
	Language string   `json:"language,omitempty" yaml:"language,omitempty"`
	Imports  []string `json:"imports,omitempty" yaml:"imports,omitempty"`
	Summary  string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Document is a full parser output: file metadata plus entities.
type Document struct {
	Files    []File   `json:"files,omitempty" yaml:"files,omitempty"`
	Entities []Entity `json:"entities" yaml:"entities"`

	Skipped []Skipped `json:"-" yaml:"-"`
}

// FileIndex returns file metadata keyed by path.
func (d *Document) FileIndex() map[string]*File {
	idx := make(map[string]*File, len(d.Files))
	for i := range d.Files {
		idx[d.Files[i].Path] = &d.Files[i]
	}
	return idx
}

// NormalizeKind maps parser spellings onto a Kind.
// Returns "" for kinds the graph does not model.
func NormalizeKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "function", "func", "def", "async_function":
		return KindFunction
	case "class", "struct", "interface":
		return KindClass
	case "method", "async_method":
		return KindMethod
	}
	return ""
}

// Validate reports whether the entity carries the fields the graph needs.
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entity missing name")
	}
	if strings.TrimSpace(e.FilePath) == "" {
		return fmt.Errorf("entity %q missing file_path", e.Name)
	}
	if e.Kind != KindFunction && e.Kind != KindClass && e.Kind != KindMethod {
		return fmt.Errorf("entity %q has unknown kind %q", e.Name, e.Kind)
	}
	if e.LineNumber < 0 {
		return fmt.Errorf("entity %q has negative line_number %d", e.Name, e.LineNumber)
	}
	if e.EndLine != nil && *e.EndLine < e.LineNumber {
		return fmt.Errorf("entity %q ends (%d) before it starts (%d)", e.Name, *e.EndLine, e.LineNumber)
	}
	return nil
}

// Contains reports whether other's line span nests inside e's span.
// Both entities must be in the same file and e must have an end line.
func (e *Entity) Contains(other *Entity) bool {
	if e.FilePath != other.FilePath || e.EndLine == nil {
		return false
	}
	if other.LineNumber <= e.LineNumber {
		return false
	}
	end := other.LineNumber
	if other.EndLine != nil {
		end = *other.EndLine
	}
	return end <= *e.EndLine
}

// IsTest reports whether the entity looks like a test.
func (e *Entity) IsTest() bool {
	if strings.HasPrefix(e.Name, "test_") || strings.HasPrefix(e.Name, "Test") || e.Name == "test" {
		return true
	}
	return IsTestPath(e.FilePath)
}

// IsTestPath reports whether a file path is a test file by common conventions.
func IsTestPath(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	base := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		base = p[i+1:]
	}
	switch {
	case strings.HasPrefix(base, "test_"),
		strings.HasSuffix(base, "_test.py"),
		strings.HasSuffix(base, "_test.go"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		base == "conftest.py":
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "tests" || seg == "test" || seg == "__tests__" {
			return true
		}
	}
	return false
}

var controlFlow = []string{"if ", "for ", "while ", "match ", "loop ", "elif ", "except ", "case "}

// EstimateComplexity returns a coarse complexity proxy for an entity:
// 1 plus parameters, brace nesting, control-flow keywords and an async surcharge.
// An explicit upstream complexity takes precedence.
func EstimateComplexity(e *Entity) int {
	if e.Complexity > 0 {
		return e.Complexity
	}
	score := 1 + len(e.Parameters)
	score += strings.Count(e.Code, "{")
	for _, kw := range controlFlow {
		score += strings.Count(e.Code, kw)
	}
	if e.IsAsync {
		score += 2
	}
	return score
}

var apiDecoratorMarkers = []string{"route", "get", "post", "put", "delete", "patch", "api"}

var quotedPath = regexp.MustCompile(`["']([^"']+)["']`)

// EndpointPath returns the HTTP path declared by a route-style decorator,
// and whether any decorator marks the entity as an API endpoint.
func EndpointPath(decorators []string) (string, bool) {
	isEndpoint := false
	for _, d := range decorators {
		lower := strings.ToLower(d)
		for _, m := range apiDecoratorMarkers {
			if strings.Contains(lower, m) {
				isEndpoint = true
				break
			}
		}
	}
	if !isEndpoint {
		return "", false
	}
	for _, d := range decorators {
		if m := quotedPath.FindStringSubmatch(d); m != nil {
			return m[1], true
		}
	}
	return "", true
}
