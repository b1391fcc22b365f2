package entity

import (
	"strings"
	"testing"
)

func TestDecodeJSONDocument(t *testing.T) {
	input := `{
		"files": [{"path": "app/auth.py", "imports": ["app.db"], "summary": "login flow"}],
		"entities": [
			{"name": "login", "type": "function", "file_path": "app/auth.py", "line_number": 3, "future_field": 1},
			{"name": "User", "kind": "class", "file_path": "app/auth.py", "line_number": 10, "end_line": 30}
		]
	}`

	doc, err := Decode(strings.NewReader(input), FormatJSON)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc.Files) != 1 || doc.Files[0].Summary != "login flow" {
		t.Errorf("unexpected files: %+v", doc.Files)
	}
	if len(doc.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(doc.Entities))
	}
	if doc.Entities[0].Kind != KindFunction {
		t.Errorf("expected function kind from type field, got %q", doc.Entities[0].Kind)
	}
	if doc.Entities[1].EndLine == nil || *doc.Entities[1].EndLine != 30 {
		t.Errorf("expected end_line 30, got %v", doc.Entities[1].EndLine)
	}
}

func TestDecodeJSONArray(t *testing.T) {
	input := `[{"name": "f", "entity_type": "method", "file_path": "a.py", "line_number": 1}]`
	doc, err := Decode(strings.NewReader(input), FormatJSON)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc.Entities) != 1 || doc.Entities[0].Kind != KindMethod {
		t.Errorf("unexpected entities: %+v", doc.Entities)
	}
}

func TestDecodeJSONLSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"path": "a.py", "imports": ["b"]}`,
		`{"name": "f", "kind": "function", "file_path": "a.py", "line_number": 1}`,
		`{not json`,
		``,
		`{"name": "g", "kind": "function", "file_path": "a.py", "line_number": 5}`,
	}, "\n")

	doc, err := Decode(strings.NewReader(input), FormatJSONL)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc.Files) != 1 {
		t.Errorf("expected 1 file record, got %d", len(doc.Files))
	}
	if len(doc.Entities) != 2 {
		t.Errorf("expected 2 entities, got %d", len(doc.Entities))
	}
	if len(doc.Skipped) != 1 || doc.Skipped[0].Line != 3 {
		t.Errorf("expected line 3 skipped, got %+v", doc.Skipped)
	}
}

func TestDecodeYAML(t *testing.T) {
	input := `
entities:
  - name: handler
    kind: function
    file_path: api/routes.py
    line_number: 4
    decorators: ["app.route('/users')"]
`
	doc, err := Decode(strings.NewReader(input), FormatYAML)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(doc.Entities) != 1 || len(doc.Entities[0].Decorators) != 1 {
		t.Fatalf("unexpected entities: %+v", doc.Entities)
	}
}

func TestValidate(t *testing.T) {
	end := 2
	tests := []struct {
		name    string
		e       Entity
		wantErr bool
	}{
		{"valid", Entity{Name: "f", Kind: KindFunction, FilePath: "a.py", LineNumber: 1}, false},
		{"missing name", Entity{Kind: KindFunction, FilePath: "a.py"}, true},
		{"missing path", Entity{Name: "f", Kind: KindFunction}, true},
		{"unknown kind", Entity{Name: "f", Kind: "variable", FilePath: "a.py"}, true},
		{"inverted span", Entity{Name: "f", Kind: KindClass, FilePath: "a.py", LineNumber: 5, EndLine: &end}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.e.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContains(t *testing.T) {
	end := 20
	class := Entity{Name: "C", Kind: KindClass, FilePath: "a.py", LineNumber: 10, EndLine: &end}
	inside := Entity{Name: "m", Kind: KindMethod, FilePath: "a.py", LineNumber: 12}
	outside := Entity{Name: "f", Kind: KindFunction, FilePath: "a.py", LineNumber: 25}
	otherFile := Entity{Name: "m", Kind: KindMethod, FilePath: "b.py", LineNumber: 12}

	if !class.Contains(&inside) {
		t.Error("expected method inside class span")
	}
	if class.Contains(&outside) {
		t.Error("function after class end should not be contained")
	}
	if class.Contains(&otherFile) {
		t.Error("entities in other files are never contained")
	}
}

func TestEstimateComplexity(t *testing.T) {
	e := Entity{
		Name:       "process",
		Parameters: []string{"a", "b"},
		Code:       "def process(a, b):\n    if a:\n        for x in b:\n            while x:\n                pass",
		IsAsync:    true,
	}
	// 1 + 2 params + if + for + while + 2 async
	if got := EstimateComplexity(&e); got != 8 {
		t.Errorf("EstimateComplexity = %d, want 8", got)
	}

	e.Complexity = 3
	if got := EstimateComplexity(&e); got != 3 {
		t.Errorf("explicit complexity should win, got %d", got)
	}
}

func TestEndpointPath(t *testing.T) {
	path, ok := EndpointPath([]string{"login_required", `app.route("/api/users")`})
	if !ok || path != "/api/users" {
		t.Errorf("EndpointPath = %q, %v", path, ok)
	}
	if _, ok := EndpointPath([]string{"staticmethod"}); ok {
		t.Error("staticmethod is not an endpoint")
	}
}

func TestIsTestPath(t *testing.T) {
	tests := map[string]bool{
		"tests/test_auth.py":     true,
		"pkg/store_test.go":      true,
		"web/app.spec.ts":        true,
		"src/auth/login.py":      false,
		"src/contest/entries.py": false,
	}
	for p, want := range tests {
		if got := IsTestPath(p); got != want {
			t.Errorf("IsTestPath(%q) = %v, want %v", p, got, want)
		}
	}
}
