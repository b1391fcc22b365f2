package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/Emberfield/autodoc/internal/builder"
	"github.com/Emberfield/autodoc/internal/entity"
	"github.com/Emberfield/autodoc/internal/features"
	"github.com/Emberfield/autodoc/internal/packs"
	"github.com/Emberfield/autodoc/internal/store"
)

func TestGetToolSchemas(t *testing.T) {
	for _, name := range AllTools {
		schema, ok := toolSchemaRegistry[name]
		if !ok {
			t.Errorf("toolSchemaRegistry missing tool: %s", name)
			continue
		}
		if schema.Name != name {
			t.Errorf("schema name mismatch: got %q, want %q", schema.Name, name)
		}
		if schema.Description == "" {
			t.Errorf("tool %s has empty description", name)
		}
	}
}

func TestToolSchemaParameters(t *testing.T) {
	tests := []struct {
		tool          string
		requiredParam string
	}{
		{"pack_info", "name"},
		{"pack_files", "name"},
		{"pack_entities", "name"},
		{"pack_deps", "name"},
		{"impact", "files"},
		{"feature_files", "id"},
		{"query_deps", "target"},
	}

	for _, tt := range tests {
		schema, ok := toolSchemaRegistry[tt.tool]
		if !ok {
			t.Fatalf("missing tool: %s", tt.tool)
		}

		found := false
		for _, p := range schema.Parameters {
			if p.Name == tt.requiredParam {
				found = true
				if !p.Required {
					t.Errorf("tool %s param %s should be required", tt.tool, tt.requiredParam)
				}
			}
		}
		if !found {
			t.Errorf("tool %s missing parameter %s", tt.tool, tt.requiredParam)
		}
	}
}

func TestToolSchemaNoRequiredParams(t *testing.T) {
	noRequired := []string{"pack_list", "features_list", "query_entry_points", "query_coverage", "query_patterns", "query_complexity"}

	for _, name := range noRequired {
		schema := toolSchemaRegistry[name]
		for _, p := range schema.Parameters {
			if p.Required {
				t.Errorf("tool %s param %s is marked required but should not be", name, p.Name)
			}
		}
	}
}

func TestAllToolsMatchesRegistry(t *testing.T) {
	registryNames := make([]string, 0, len(toolSchemaRegistry))
	for name := range toolSchemaRegistry {
		registryNames = append(registryNames, name)
	}
	sort.Strings(registryNames)

	all := append([]string(nil), AllTools...)
	sort.Strings(all)

	if !reflect.DeepEqual(registryNames, all) {
		t.Errorf("registry %v != AllTools %v", registryNames, all)
	}
	for _, name := range DefaultTools {
		if _, ok := toolSchemaRegistry[name]; !ok {
			t.Errorf("default tool %s not in registry", name)
		}
	}
}

func TestNewUnknownTool(t *testing.T) {
	if _, err := New(Config{Tools: []string{"pack_list", "nope"}}, Deps{}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func newTestServer(t *testing.T, tools []string) *Server {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, store.Config{
		Backend: store.BackendSQLite,
		URI:     filepath.Join(t.TempDir(), "graph.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	doc := &entity.Document{
		Files: []entity.File{
			{Path: "auth/login.py", Imports: []string{"from auth import session"}},
			{Path: "auth/session.py"},
			{Path: "api/routes.py", Imports: []string{"from auth import login"}},
			{Path: "docs/guide.md"},
		},
		Entities: []entity.Entity{
			{Name: "login", Kind: entity.KindFunction, FilePath: "auth/login.py", LineNumber: 3},
			{Name: "Session", Kind: entity.KindClass, FilePath: "auth/session.py", LineNumber: 1},
			{Name: "refresh", Kind: entity.KindMethod, FilePath: "auth/session.py", LineNumber: 5, ParentClass: "Session"},
			{Name: "get_user", Kind: entity.KindFunction, FilePath: "api/routes.py", LineNumber: 10, Decorators: []string{"app.get"}},
		},
	}
	if _, err := builder.New(s, builder.Options{}).Build(ctx, doc); err != nil {
		t.Fatalf("build: %v", err)
	}

	reg := packs.NewRegistry([]packs.Pack{
		{Name: "auth", DisplayName: "Authentication", FilePatterns: []string{"auth/**"}, SecurityLevel: packs.SecurityCritical, Tags: []string{"security"}},
		{Name: "api", FilePatterns: []string{"api/**"}, Dependencies: []string{"auth"}, SecurityLevel: packs.SecurityNormal},
	}, nil)

	art := features.NewArtifact(t.TempDir(), nil)
	err = art.Save(&features.Result{
		Features: map[int]*features.Feature{
			0: {ID: 0, Files: []string{"auth/login.py", "auth/session.py"}, FileCount: 2, Name: "user-auth", DisplayName: "User Auth"},
			1: {ID: 1, Files: []string{"api/routes.py"}, FileCount: 1},
		},
	})
	if err != nil {
		t.Fatalf("save features: %v", err)
	}

	srv, err := New(Config{Tools: tools}, Deps{Store: s, Registry: reg, Features: art})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func decode(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	return m
}

func TestCallToolPacks(t *testing.T) {
	srv := newTestServer(t, AllTools)
	ctx := context.Background()

	out, err := srv.CallTool(ctx, "pack_list", map[string]interface{}{"tag": "security"})
	if err != nil {
		t.Fatal(err)
	}
	if m := decode(t, out); m["total"] != float64(1) {
		t.Errorf("pack_list total = %v, want 1", m["total"])
	}

	out, err = srv.CallTool(ctx, "pack_info", map[string]interface{}{"name": "api", "include_dependencies": true})
	if err != nil {
		t.Fatal(err)
	}
	if m := decode(t, out); !reflect.DeepEqual(m["dependency_chain"], []interface{}{"auth"}) {
		t.Errorf("dependency_chain = %v", m["dependency_chain"])
	}

	out, err = srv.CallTool(ctx, "pack_files", map[string]interface{}{"name": "auth"})
	if err != nil {
		t.Fatal(err)
	}
	m := decode(t, out)
	if !reflect.DeepEqual(m["resolved_files"], []interface{}{"auth/login.py", "auth/session.py"}) {
		t.Errorf("resolved_files = %v", m["resolved_files"])
	}

	out, err = srv.CallTool(ctx, "pack_entities", map[string]interface{}{"name": "auth", "limit": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	m = decode(t, out)
	if m["total"] != float64(3) || m["truncated"] != true {
		t.Errorf("pack_entities total=%v truncated=%v, want 3 and true", m["total"], m["truncated"])
	}

	out, err = srv.CallTool(ctx, "pack_deps", map[string]interface{}{"name": "auth"})
	if err != nil {
		t.Fatal(err)
	}
	if m := decode(t, out); !reflect.DeepEqual(m["dependents"], []interface{}{"api"}) {
		t.Errorf("dependents = %v", m["dependents"])
	}

	_, err = srv.CallTool(ctx, "pack_info", map[string]interface{}{"name": "billing"})
	if err == nil || !strings.Contains(err.Error(), "available: auth, api") {
		t.Errorf("unknown pack error = %v", err)
	}
}

func TestCallToolImpactAndFeatures(t *testing.T) {
	srv := newTestServer(t, AllTools)
	ctx := context.Background()

	out, err := srv.CallTool(ctx, "impact", map[string]interface{}{"files": "auth/login.py, api/routes.py"})
	if err != nil {
		t.Fatal(err)
	}
	m := decode(t, out)
	if !reflect.DeepEqual(m["critical_packs"], []interface{}{"auth"}) {
		t.Errorf("critical_packs = %v", m["critical_packs"])
	}
	if got := m["affected_features"].([]interface{}); len(got) != 2 {
		t.Errorf("affected_features = %v", got)
	}

	out, err = srv.CallTool(ctx, "features_list", map[string]interface{}{"named_only": true})
	if err != nil {
		t.Fatal(err)
	}
	if m := decode(t, out); m["total"] != float64(1) {
		t.Errorf("named features = %v, want 1", m["total"])
	}

	out, err = srv.CallTool(ctx, "feature_files", map[string]interface{}{"id": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if m := decode(t, out); m["name"] != "Feature 1" {
		t.Errorf("feature name = %v", m["name"])
	}

	if _, err := srv.CallTool(ctx, "feature_files", map[string]interface{}{"id": float64(9)}); err == nil {
		t.Error("expected error for missing feature")
	}
}

func TestCallToolQueries(t *testing.T) {
	srv := newTestServer(t, AllTools)
	ctx := context.Background()

	out, err := srv.CallTool(ctx, "query_deps", map[string]interface{}{"target": "auth/login.py"})
	if err != nil {
		t.Fatal(err)
	}
	m := decode(t, out)
	if imports := m["imports"].([]interface{}); len(imports) != 1 {
		t.Errorf("imports = %v", imports)
	}

	for _, tool := range []string{"query_entry_points", "query_coverage", "query_patterns"} {
		if _, err := srv.CallTool(ctx, tool, nil); err != nil {
			t.Errorf("%s: %v", tool, err)
		}
	}

	out, err = srv.CallTool(ctx, "query_complexity", map[string]interface{}{"limit": float64(2)})
	if err != nil {
		t.Fatal(err)
	}
	var stats []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Errorf("complexity rows = %d, want 2", len(stats))
	}
}

func TestCallToolErrors(t *testing.T) {
	srv := newTestServer(t, DefaultTools)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		want string
	}{
		{"not registered", "query_deps", map[string]interface{}{"target": "x"}, "unknown tool"},
		{"missing name", "pack_info", nil, "name parameter is required"},
		{"missing files", "impact", map[string]interface{}{"files": " , "}, "files parameter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.CallTool(ctx, tt.tool, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestCallToolWithoutPacks(t *testing.T) {
	srv, err := New(Config{}, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = srv.CallTool(context.Background(), "pack_list", nil)
	if err == nil || !strings.Contains(err.Error(), "no context packs configured") {
		t.Errorf("err = %v", err)
	}
	_, err = srv.CallTool(context.Background(), "features_list", nil)
	if err == nil {
		t.Error("expected error without a features artifact")
	}
}
