package query

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/Emberfield/autodoc/internal/entity"
	"github.com/Emberfield/autodoc/internal/store"
)

// Pattern names.
const (
	PatternSingleton   = "singleton"
	PatternFactory     = "factory"
	PatternAPIEndpoint = "api_endpoint"
	PatternTestSuite   = "test_suite"
)

// PatternMatch is one entity matching a structural pattern.
type PatternMatch struct {
	Ref
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Pattern groups the entities matching one rule.
type Pattern struct {
	Name    string         `json:"pattern" yaml:"pattern"`
	Matches []PatternMatch `json:"matches" yaml:"matches"`
}

var constructorNames = map[string]bool{"__init__": true, "__new__": true, "constructor": true}

var instanceAccessors = map[string]bool{"get_instance": true, "getinstance": true, "instance": true, "shared": true}

// CodePatterns applies rule-based pattern detection. Every rule is reported,
// possibly with no matches, in a fixed order.
func (e *Engine) CodePatterns(ctx context.Context) ([]Pattern, error) {
	s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	rules := []struct {
		name  string
		match func(*snapshot, *store.Node) (string, bool)
	}{
		{PatternSingleton, singleton},
		{PatternFactory, factory},
		{PatternAPIEndpoint, apiEndpoint},
		{PatternTestSuite, testSuite},
	}

	out := make([]Pattern, 0, len(rules))
	for _, r := range rules {
		p := Pattern{Name: r.name, Matches: []PatternMatch{}}
		for _, n := range s.nodes {
			if detail, ok := r.match(s, n); ok {
				p.Matches = append(p.Matches, PatternMatch{Ref: refOf(n), Detail: detail})
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// singleton: a class named or documented as a singleton, one exposing an
// instance accessor, or one whose only constructor is private.
func singleton(s *snapshot, n *store.Node) (string, bool) {
	if n.Kind != store.KindClass {
		return "", false
	}
	if containsFold(n.Name, "singleton") || containsFold(n.Docstring, "singleton") {
		return "named singleton", true
	}

	var ctors []*store.Node
	for _, m := range s.methods[n.ID] {
		lname := strings.ToLower(m.Name)
		if instanceAccessors[lname] {
			return "instance accessor " + m.Name, true
		}
		if constructorNames[m.Name] || m.Name == n.Name {
			ctors = append(ctors, m)
		}
	}
	if len(ctors) == 1 && ctors[0].Visibility == "private" {
		return "single private constructor", true
	}
	return "", false
}

// factory: a class or function whose name declares it builds other objects.
func factory(_ *snapshot, n *store.Node) (string, bool) {
	if n.Kind == store.KindFile || n.IsTest {
		return "", false
	}
	switch {
	case strings.Contains(n.Name, "Factory"):
		return "factory name", true
	case strings.HasPrefix(n.Name, "create_"), strings.HasPrefix(n.Name, "make_"):
		return "creator function", true
	case camelPrefix(n.Name, "create"), camelPrefix(n.Name, "make"):
		return "creator function", true
	}
	return "", false
}

// camelPrefix reports whether name is prefix followed by an upper-case word,
// as in "createUser".
func camelPrefix(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
		return false
	}
	return unicode.IsUpper(rune(name[len(prefix)]))
}

// apiEndpoint: a function or method with an HTTP route decorator.
func apiEndpoint(_ *snapshot, n *store.Node) (string, bool) {
	if n.Kind != store.KindFunction && n.Kind != store.KindMethod {
		return "", false
	}
	p, ok := entity.EndpointPath(n.Decorators)
	if !ok {
		return "", false
	}
	if p == "" {
		return "route decorator", true
	}
	return p, true
}

// testSuite: a test class grouping test methods.
func testSuite(s *snapshot, n *store.Node) (string, bool) {
	if n.Kind != store.KindClass {
		return "", false
	}
	if !strings.HasPrefix(n.Name, "Test") && !strings.HasSuffix(n.Name, "Tests") && !strings.HasSuffix(n.Name, "TestCase") {
		return "", false
	}
	tests := 0
	for _, m := range s.methods[n.ID] {
		if strings.HasPrefix(m.Name, "test") {
			tests++
		}
	}
	return fmt.Sprintf("%d tests", tests), true
}
