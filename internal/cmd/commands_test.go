package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/packs"
)

const testConfig = `log:
  level: "off"
packs:
  - name: auth
    display_name: Authentication
    files: ["auth/**"]
    security_level: critical
    tags: [security]
  - name: api
    files: ["api/**"]
    dependencies: [auth]
    security_level: high
`

const testPacksTOML = `version = 1

[[pack]]
name = "web"
files = ["web/**"]
dependencies = ["api"]
`

const testEntities = `{
  "files": [
    {"path": "auth/login.py", "imports": ["from auth import session"], "summary": "Password login"},
    {"path": "auth/session.py"},
    {"path": "api/routes.py", "imports": ["from auth import login"]},
    {"path": "web/app.ts"}
  ],
  "entities": [
    {"name": "login", "type": "function", "file_path": "auth/login.py", "line_number": 1, "code": "def login():\n    return Session()"},
    {"name": "Session", "type": "class", "file_path": "auth/session.py", "line_number": 1},
    {"name": "get_user", "type": "function", "file_path": "api/routes.py", "line_number": 3,
     "decorators": ["app.get('/users')"], "code": "def get_user():\n    return login()"}
  ]
}`

func resetFlags() {
	verbose = 0
	quiet = true
	configPath = ""
	outputFormat = "json"
	initForce = false
	graphBuildCalls = ""
	graphLogLimit = 20
	queryTransitive = false
	queryLimit = 20
	featuresForce = false
	featuresName = false
	featuresRenameAll = false
	featuresDisplayName = ""
	featuresReasoning = ""
	packsTag = ""
	packsSecurity = ""
	packsTransitive = false
	packsAutoTop = 0
	packsAutoWrite = false
	packsOverwriteManual = false
	impactStdin = false
	impactNoFeatures = false
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupProject creates a configured project in a temp dir, changes into it
// and returns its root.
func setupProject(t *testing.T) string {
	t.Helper()
	resetFlags()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".autodoc", "config.yaml"), testConfig)
	writeFile(t, filepath.Join(root, ".autodoc", "packs.toml"), testPacksTOML)
	writeFile(t, filepath.Join(root, "entities.json"), testEntities)
	writeFile(t, filepath.Join(root, "auth", "login.py"), "def login():\n    return Session()\n")
	writeFile(t, filepath.Join(root, "auth", "session.py"), "class Session:\n    pass\n")
	writeFile(t, filepath.Join(root, "api", "routes.py"), "def get_user():\n    return login()\n")
	writeFile(t, filepath.Join(root, "web", "app.ts"), "export {}\n")
	t.Chdir(root)
	return root
}

func run(t *testing.T, c *cobra.Command, fn func(*cobra.Command, []string) error, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(io.Discard)
	if err := fn(c, args); err != nil {
		t.Fatalf("%s %v: %v", c.Name(), args, err)
	}
	return buf.String()
}

func decodeJSON(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
}

func buildGraph(t *testing.T) {
	t.Helper()
	run(t, graphBuildCmd, runGraphBuild, "entities.json")
}

func TestInit(t *testing.T) {
	resetFlags()
	root := t.TempDir()
	t.Chdir(root)

	out := run(t, initCmd, runInit)
	if !strings.Contains(out, "Initialized autodoc") {
		t.Errorf("unexpected output: %q", out)
	}
	for _, name := range []string{"config.yaml", "graph.db"} {
		if _, err := os.Stat(filepath.Join(root, ".autodoc", name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	out = run(t, initCmd, runInit)
	if !strings.Contains(out, "Already initialized") {
		t.Errorf("second init output: %q", out)
	}
}

func TestGraphBuildAndQuery(t *testing.T) {
	setupProject(t)

	var res struct {
		Files    int `json:"files"`
		Entities int `json:"entities"`
	}
	decodeJSON(t, run(t, graphBuildCmd, runGraphBuild, "entities.json"), &res)
	if res.Files != 4 || res.Entities != 3 {
		t.Errorf("build = %+v, want 4 files and 3 entities", res)
	}

	var stats struct {
		NodesByKind map[string]int `json:"nodes_by_kind"`
	}
	decodeJSON(t, run(t, graphStatsCmd, runGraphStats), &stats)
	if stats.NodesByKind["File"] != 4 {
		t.Errorf("File nodes = %d, want 4", stats.NodesByKind["File"])
	}

	var deps struct {
		Imports    []struct{ FilePath string `json:"file_path"` } `json:"imports"`
		ImportedBy []struct{ FilePath string `json:"file_path"` } `json:"imported_by"`
	}
	decodeJSON(t, run(t, queryDepsCmd, runQueryDeps, "auth/login.py"), &deps)
	if len(deps.Imports) != 1 || deps.Imports[0].FilePath != "auth/session.py" {
		t.Errorf("imports = %+v", deps.Imports)
	}
	if len(deps.ImportedBy) != 1 || deps.ImportedBy[0].FilePath != "api/routes.py" {
		t.Errorf("imported_by = %+v", deps.ImportedBy)
	}

	queryLimit = 2
	var complexity []map[string]interface{}
	decodeJSON(t, run(t, queryComplexityCmd, runQueryComplexity), &complexity)
	if len(complexity) != 2 {
		t.Errorf("complexity rows = %d, want 2", len(complexity))
	}

	for _, tc := range []struct {
		c  *cobra.Command
		fn func(*cobra.Command, []string) error
	}{
		{queryEntryPointsCmd, runQueryEntryPoints},
		{queryCoverageCmd, runQueryCoverage},
		{queryPatternsCmd, runQueryPatterns},
	} {
		out := run(t, tc.c, tc.fn)
		if !json.Valid([]byte(out)) {
			t.Errorf("%s: invalid JSON %q", tc.c.Name(), out)
		}
	}
}

func TestGraphLogNeedsDolt(t *testing.T) {
	setupProject(t)
	buildGraph(t)

	graphLogCmd.SetOut(io.Discard)
	err := runGraphLog(graphLogCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "dolt") {
		t.Errorf("err = %v, want dolt backend error", err)
	}
}

func TestFeatures(t *testing.T) {
	setupProject(t)
	buildGraph(t)

	var first featuresReport
	decodeJSON(t, run(t, featuresDetectCmd, runFeaturesDetect), &first)
	total := 0
	for _, f := range first.Features {
		total += f.FileCount
	}
	if total != 4 {
		t.Errorf("Σ file_count = %d, want 4", total)
	}
	if first.Cached {
		t.Error("first detection reported as cached")
	}

	var second featuresReport
	decodeJSON(t, run(t, featuresDetectCmd, runFeaturesDetect), &second)
	if !second.Cached || second.RunID != first.RunID {
		t.Errorf("second detection should reuse run %s, got cached=%v run=%s", first.RunID, second.Cached, second.RunID)
	}

	featuresForce = true
	var forced featuresReport
	decodeJSON(t, run(t, featuresDetectCmd, runFeaturesDetect), &forced)
	if forced.Cached || forced.RunID == first.RunID {
		t.Error("--force should recompute")
	}
	featuresForce = false

	id := forced.Features[0].ID
	var renamed struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}
	decodeJSON(t, run(t, featuresRenameCmd, runFeaturesRename, "0", "User Sessions"), &renamed)
	if id != 0 {
		t.Fatalf("first feature id = %d", id)
	}
	if renamed.Name != "user-sessions" || renamed.DisplayName != "User Sessions" {
		t.Errorf("renamed = %+v", renamed)
	}

	var listed featuresReport
	decodeJSON(t, run(t, featuresListCmd, runFeaturesList), &listed)
	if listed.Stale {
		t.Error("features reported stale for an unchanged graph")
	}
	if listed.Features[0].Name != "User Sessions" || !listed.Features[0].Named {
		t.Errorf("listed feature 0 = %+v", listed.Features[0])
	}

	if err := runFeaturesShow(featuresShowCmd, []string{"x"}); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestFeaturesNameWithoutKey(t *testing.T) {
	setupProject(t)
	t.Setenv("OPENAI_API_KEY", "")
	buildGraph(t)

	featuresName = true
	featuresDetectCmd.SetOut(io.Discard)
	err := runFeaturesDetect(featuresDetectCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("err = %v, want configuration hint", err)
	}
	if _, err := os.Stat(filepath.Join(".autodoc", "features_cache.json")); err != nil {
		t.Errorf("detection result should be saved before naming: %v", err)
	}
}

func TestPacks(t *testing.T) {
	setupProject(t)

	packsSecurity = "critical"
	var listing struct {
		Total int `json:"total"`
		Packs []struct {
			Name string `json:"name"`
		} `json:"packs"`
	}
	decodeJSON(t, run(t, packsListCmd, runPacksList), &listing)
	if listing.Total != 1 || listing.Packs[0].Name != "auth" {
		t.Errorf("critical packs = %+v", listing)
	}
	packsSecurity = ""

	decodeJSON(t, run(t, packsListCmd, runPacksList), &listing)
	if listing.Total != 3 {
		t.Errorf("all packs = %d, want 3 (config + packs.toml)", listing.Total)
	}

	packsTransitive = true
	var deps packDeps
	decodeJSON(t, run(t, packsDepsCmd, runPacksDeps, "web"), &deps)
	if !reflect.DeepEqual(deps.Dependencies, []string{"api", "auth"}) {
		t.Errorf("web deps = %v", deps.Dependencies)
	}

	var files packFiles
	decodeJSON(t, run(t, packsFilesCmd, runPacksFiles, "auth"), &files)
	if !reflect.DeepEqual(files.Files, []string{"auth/login.py", "auth/session.py"}) {
		t.Errorf("auth files = %v", files.Files)
	}

	if err := runPacksShow(packsShowCmd, []string{"billing"}); err == nil || !strings.Contains(err.Error(), "pack not found") {
		t.Errorf("unknown pack err = %v", err)
	}
}

func TestPacksDiff(t *testing.T) {
	root := setupProject(t)

	var baseline packs.DiffResult
	decodeJSON(t, run(t, packsDiffCmd, runPacksDiff, "auth"), &baseline)
	if !baseline.Baseline || len(baseline.Added) != 2 {
		t.Errorf("baseline = %+v", baseline)
	}

	writeFile(t, filepath.Join(root, "auth", "login.py"), "def login(user):\n    return Session(user)\n")

	var diff packs.DiffResult
	decodeJSON(t, run(t, packsDiffCmd, runPacksDiff, "auth"), &diff)
	if !reflect.DeepEqual(diff.Modified, []string{"auth/login.py"}) || len(diff.Added)+len(diff.Removed) != 0 {
		t.Errorf("diff = %+v", diff)
	}
}

func TestPacksAutoKeepsManualPacks(t *testing.T) {
	root := setupProject(t)
	buildGraph(t)

	packsAutoWrite = true
	var report autoPacksReport
	decodeJSON(t, run(t, packsAutoCmd, runPacksAuto), &report)

	if len(report.Generated) != 2 {
		t.Fatalf("generated = %+v", report.Generated)
	}
	if report.Merge == nil || !reflect.DeepEqual(report.Merge.Skipped, []string{"auth", "api"}) {
		t.Errorf("merge = %+v, want auth and api skipped", report.Merge)
	}

	written, err := packs.LoadPacksFile(filepath.Join(root, ".autodoc", "packs.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 || written[0].Name != "web" {
		t.Errorf("packs.toml = %+v, want only web", written)
	}
}

func TestImpact(t *testing.T) {
	setupProject(t)

	var report struct {
		AffectedPacks        []string `json:"affected_packs"`
		CriticalPacks        []string `json:"critical_packs"`
		SecurityImplications []string `json:"security_implications"`
	}
	decodeJSON(t, run(t, impactCmd, runImpact, "auth/login.py"), &report)
	if !reflect.DeepEqual(report.AffectedPacks, []string{"auth", "api", "web"}) {
		t.Errorf("affected = %v", report.AffectedPacks)
	}
	if !reflect.DeepEqual(report.CriticalPacks, []string{"auth"}) {
		t.Errorf("critical = %v", report.CriticalPacks)
	}
	if len(report.SecurityImplications) != 2 {
		t.Errorf("implications = %v", report.SecurityImplications)
	}

	impactStdin = true
	impactCmd.SetIn(strings.NewReader("web/app.ts\n\n"))
	decodeJSON(t, run(t, impactCmd, runImpact), &report)
	if !reflect.DeepEqual(report.AffectedPacks, []string{"web"}) {
		t.Errorf("stdin affected = %v", report.AffectedPacks)
	}
}

func TestParseTools(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"pack_list, impact,", []string{"pack_list", "impact"}},
	}
	for _, tt := range tests {
		if got := parseTools(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseTools(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseTools("all"); len(got) < 10 {
		t.Errorf("parseTools(all) = %v", got)
	}
}
