package builder

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/Emberfield/autodoc/internal/entity"
)

// CallDetector finds the names an entity calls. Detection is heuristic: both
// implementations report false positives and miss calls the other might see.
// The builder resolves returned names against the known entities.
type CallDetector interface {
	CalledNames(ctx context.Context, e *entity.Entity) ([]string, error)
}

// NewCallDetector returns the detector for a call_detection setting, or nil
// for "none".
func NewCallDetector(mode string) (CallDetector, error) {
	switch mode {
	case "", "name":
		return NameMatcher{}, nil
	case "syntax":
		return NewSyntaxMatcher(), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown call detection mode %q", mode)
}

var callToken = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// NameMatcher reports every identifier directly followed by "(" in the
// entity's source text.
type NameMatcher struct{}

// CalledNames implements CallDetector.
func (NameMatcher) CalledNames(_ context.Context, e *entity.Entity) ([]string, error) {
	return uniqueTokens(e.Code), nil
}

func uniqueTokens(code string) []string {
	if code == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, m := range callToken.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// SyntaxMatcher parses Python entities with tree-sitter and collects the
// targets of call expressions, ignoring names that only appear in strings or
// comments. Entities from other languages fall back to NameMatcher.
type SyntaxMatcher struct {
	fallback NameMatcher
}

// NewSyntaxMatcher creates a tree-sitter backed detector.
func NewSyntaxMatcher() *SyntaxMatcher {
	return &SyntaxMatcher{}
}

// CalledNames implements CallDetector.
func (m *SyntaxMatcher) CalledNames(ctx context.Context, e *entity.Entity) ([]string, error) {
	if e.Code == "" {
		return nil, nil
	}
	if path.Ext(e.FilePath) != ".py" {
		return m.fallback.CalledNames(ctx, e)
	}

	source := []byte(dedent(e.Code))
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", e.Name, err)
	}
	defer tree.Close()

	seen := make(map[string]bool)
	var out []string
	walkNode(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Type() != "call" {
			return true
		}
		if name := callTarget(n, source); name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		return true
	})
	return out, nil
}

// callTarget returns the called name: "f" for f(), "m" for obj.m().
func callTarget(call *sitter.Node, source []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil && call.NamedChildCount() > 0 {
		fn = call.NamedChild(0)
	}
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return fn.Content(source)
	case "attribute":
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			return attr.Content(source)
		}
	}
	return ""
}

func walkNode(node *sitter.Node, fn func(*sitter.Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkNode(node.Child(i), fn)
	}
}

// dedent removes the common leading whitespace of all non-blank lines, so a
// method body extracted from a class parses as module-level code.
func dedent(code string) string {
	lines := strings.Split(code, "\n")
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || indent < common {
			common = indent
		}
	}
	if common <= 0 {
		return code
	}
	for i, l := range lines {
		if len(l) >= common {
			lines[i] = l[common:]
		} else {
			lines[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
