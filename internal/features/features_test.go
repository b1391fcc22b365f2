package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Emberfield/autodoc/internal/builder"
	"github.com/Emberfield/autodoc/internal/cache"
	"github.com/Emberfield/autodoc/internal/entity"
	"github.com/Emberfield/autodoc/internal/store"
	"github.com/Emberfield/autodoc/internal/summarizer"
)

// fileGraph returns File nodes for paths and an IMPORTS edge per pair.
func fileGraph(paths []string, pairs [][2]string) ([]*store.Node, []*store.Edge) {
	var nodes []*store.Node
	for _, p := range paths {
		nodes = append(nodes, &store.Node{ID: "file:" + p, Kind: store.KindFile, Name: p, FilePath: p})
	}
	var edges []*store.Edge
	for _, pr := range pairs {
		edges = append(edges, &store.Edge{FromID: "file:" + pr[0], ToID: "file:" + pr[1], Rel: store.RelImports})
	}
	return nodes, edges
}

// twoTriangles is two dense clusters joined by one edge, plus a loner.
func twoTriangles() *Projection {
	nodes, edges := fileGraph(
		[]string{"a1.py", "a2.py", "a3.py", "b1.py", "b2.py", "b3.py", "lonely.py"},
		[][2]string{
			{"a1.py", "a2.py"}, {"a2.py", "a3.py"}, {"a3.py", "a1.py"},
			{"b1.py", "b2.py"}, {"b2.py", "b3.py"}, {"b3.py", "b1.py"},
			{"a1.py", "b1.py"},
		})
	return Project(nodes, edges, ProjectionOptions{})
}

func TestProject(t *testing.T) {
	nodes, edges := fileGraph(
		[]string{"app.py", "db.py", "node_modules/lib.js", "util.py"},
		[][2]string{{"app.py", "db.py"}, {"app.py", "node_modules/lib.js"}, {"util.py", "app.py"}},
	)
	nodes = append(nodes,
		&store.Node{ID: "fn:save", Kind: store.KindFunction, Name: "save", FilePath: "db.py"},
		&store.Node{ID: "fn:main", Kind: store.KindFunction, Name: "main", FilePath: "app.py"},
	)
	edges = append(edges,
		&store.Edge{FromID: "fn:main", ToID: "fn:save", Rel: store.RelCalls},
		&store.Edge{FromID: "file:app.py", ToID: "fn:main", Rel: store.RelContains},
	)

	tests := []struct {
		name       string
		opts       ProjectionOptions
		wantAppDB  float64
		wantPairs  int
		wantExcl   []string
		wantGods   []string
		wantFiles  int
		wantNoEdge [2]string
	}{
		{
			name:      "imports only",
			opts:      ProjectionOptions{},
			wantAppDB: 1, wantPairs: 3, wantFiles: 4,
		},
		{
			name:      "calls add weight",
			opts:      ProjectionOptions{IncludeCalls: true},
			wantAppDB: 2, wantPairs: 3, wantFiles: 4,
		},
		{
			name:      "excluded paths lose their edges",
			opts:      ProjectionOptions{Exclude: []string{"node_modules/"}},
			wantAppDB: 1, wantPairs: 2, wantFiles: 4,
			wantExcl:   []string{"node_modules/lib.js"},
			wantNoEdge: [2]string{"app.py", "node_modules/lib.js"},
		},
		{
			name:      "god objects are isolated",
			opts:      ProjectionOptions{MaxDegree: 3},
			wantAppDB: 0, wantPairs: 0, wantFiles: 4,
			wantGods:   []string{"app.py"},
			wantNoEdge: [2]string{"app.py", "db.py"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(nodes, edges, tt.opts)
			if len(p.Files) != tt.wantFiles {
				t.Errorf("Files = %v", p.Files)
			}
			if got := p.Weight("app.py", "db.py"); got != tt.wantAppDB {
				t.Errorf("weight(app, db) = %v, want %v", got, tt.wantAppDB)
			}
			if got := p.Weight("db.py", "app.py"); got != tt.wantAppDB {
				t.Errorf("projection is not symmetric: %v", got)
			}
			if got := p.EdgeCount(); got != tt.wantPairs {
				t.Errorf("EdgeCount = %d, want %d", got, tt.wantPairs)
			}
			if !reflect.DeepEqual(p.Excluded, tt.wantExcl) {
				t.Errorf("Excluded = %v, want %v", p.Excluded, tt.wantExcl)
			}
			if !reflect.DeepEqual(p.GodObjects, tt.wantGods) {
				t.Errorf("GodObjects = %v, want %v", p.GodObjects, tt.wantGods)
			}
			if a, b := tt.wantNoEdge[0], tt.wantNoEdge[1]; a != "" && p.Weight(a, b) != 0 {
				t.Errorf("unexpected edge %s - %s", a, b)
			}
		})
	}
}

func TestLouvainTwoClusters(t *testing.T) {
	part, err := Louvain(context.Background(), twoTriangles(), LouvainOptions{Seed: 42})
	if err != nil {
		t.Fatal(err)
	}

	if part.Count != 3 {
		t.Fatalf("Count = %d, want 3 (two clusters and a loner)", part.Count)
	}
	c := part.Community
	if c["a1.py"] != c["a2.py"] || c["a2.py"] != c["a3.py"] {
		t.Errorf("a-cluster split: %v", c)
	}
	if c["b1.py"] != c["b2.py"] || c["b2.py"] != c["b3.py"] {
		t.Errorf("b-cluster split: %v", c)
	}
	if c["a1.py"] == c["b1.py"] || c["lonely.py"] == c["a1.py"] || c["lonely.py"] == c["b1.py"] {
		t.Errorf("clusters merged: %v", c)
	}
	if part.Modularity < 0.3 || part.Modularity > 1 {
		t.Errorf("Modularity = %v, want about 0.357", part.Modularity)
	}
	if part.Levels < 1 {
		t.Errorf("Levels = %d, want at least 1", part.Levels)
	}
}

func TestLouvainPartitionsEveryFile(t *testing.T) {
	p := twoTriangles()
	for _, seed := range []int64{1, 7, 42, 1234} {
		part, err := Louvain(context.Background(), p, LouvainOptions{Seed: seed})
		if err != nil {
			t.Fatal(err)
		}
		if len(part.Community) != len(p.Files) {
			t.Errorf("seed %d: %d files assigned, want %d", seed, len(part.Community), len(p.Files))
		}
		for f, c := range part.Community {
			if c < 0 || c >= part.Count {
				t.Errorf("seed %d: %s in community %d out of range", seed, f, c)
			}
		}
	}

	again, _ := Louvain(context.Background(), p, LouvainOptions{Seed: 7})
	first, _ := Louvain(context.Background(), p, LouvainOptions{Seed: 7})
	if !reflect.DeepEqual(first.Community, again.Community) {
		t.Error("same seed gave different partitions")
	}
}

func TestLouvainNoEdges(t *testing.T) {
	nodes, _ := fileGraph([]string{"a.py", "b.py"}, nil)
	part, err := Louvain(context.Background(), Project(nodes, nil, ProjectionOptions{}), LouvainOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if part.Count != 2 || part.Modularity != 0 || part.Levels != 0 {
		t.Errorf("partition = %+v", part)
	}
}

func TestLouvainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Louvain(ctx, twoTriangles(), LouvainOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Backend: store.BackendSQLite,
		URI:     filepath.Join(t.TempDir(), "graph.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func billingDoc() *entity.Document {
	return &entity.Document{
		Files: []entity.File{
			{Path: "billing/invoice.py", Imports: []string{"from billing import tax", "from billing import ledger"}, Summary: "Builds invoices"},
			{Path: "billing/tax.py", Imports: []string{"from billing import ledger"}},
			{Path: "billing/ledger.py", Summary: "Double-entry ledger"},
			{Path: "users/signup.py", Imports: []string{"from users import profile", "from users import email"}},
			{Path: "users/profile.py", Imports: []string{"from users import email"}},
			{Path: "users/email.py"},
			{Path: "users/api.py", Imports: []string{"from billing import invoice", "from users import signup"}},
			{Path: "node_modules/left-pad/index.js"},
			{Path: "README.md"},
		},
	}
}

func TestDetect(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	doc := billingDoc()
	if _, err := builder.New(s, builder.Options{}).Build(ctx, doc); err != nil {
		t.Fatal(err)
	}

	d := NewDetector(s, Options{
		Projection: ProjectionOptions{IncludeCalls: true, MaxDegree: 50, Exclude: []string{"node_modules/"}},
		Louvain:    LouvainOptions{Seed: 42},
		SampleSize: 2,
	})
	res, err := d.Detect(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if res.FileCount() != len(doc.Files) {
		t.Errorf("Σ file_count = %d, want %d", res.FileCount(), len(doc.Files))
	}
	seen := make(map[string]int)
	for _, f := range res.List() {
		if f.FileCount != len(f.Files) {
			t.Errorf("feature %d: file_count %d != %d files", f.ID, f.FileCount, len(f.Files))
		}
		if !sort.StringsAreSorted(f.Files) {
			t.Errorf("feature %d files not sorted", f.ID)
		}
		if len(f.SampleFiles) > 2 {
			t.Errorf("feature %d has %d samples", f.ID, len(f.SampleFiles))
		}
		if f.Key == "" {
			t.Errorf("feature %d has no key", f.ID)
		}
		for _, p := range f.Files {
			seen[p]++
		}
	}
	for _, file := range doc.Files {
		if seen[file.Path] != 1 {
			t.Errorf("%s assigned %d times", file.Path, seen[file.Path])
		}
	}

	invoice := res.ForFile("billing/invoice.py")
	if invoice == nil || !invoice.Contains("billing/ledger.py") {
		t.Errorf("billing files not clustered together: %+v", invoice)
	}
	if res.ForFile("users/email.py") == invoice {
		t.Error("users and billing clustered together")
	}
	if !reflect.DeepEqual(res.Excluded, []string{"node_modules/left-pad/index.js"}) {
		t.Errorf("Excluded = %v", res.Excluded)
	}

	hash, err := d.GraphHash(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if hash != res.GraphHash {
		t.Errorf("GraphHash = %s, result has %s", hash, res.GraphHash)
	}
	if res.RunID == "" || res.Algorithm != AlgorithmLouvain || res.Seed != 42 {
		t.Errorf("run metadata = %q %q %d", res.RunID, res.Algorithm, res.Seed)
	}
}

func TestDetectEmptyGraph(t *testing.T) {
	d := NewDetector(openStore(t), Options{})
	if _, err := d.Detect(context.Background()); !errors.Is(err, ErrNoGraph) {
		t.Errorf("err = %v, want ErrNoGraph", err)
	}
}

func sampleResult() *Result {
	mk := func(id int, files ...string) *Feature {
		f := &Feature{ID: id, Files: files, FileCount: len(files), Key: strings.Join(files, ",")}
		for _, p := range files {
			f.SampleFiles = append(f.SampleFiles, SampleFile{Path: p})
		}
		return f
	}
	return &Result{
		Version:   ResultVersion,
		GraphHash: "h1",
		Features: map[int]*Feature{
			0: mk(0, "billing/invoice.py", "billing/tax.py"),
			1: mk(1, "users/email.py", "users/signup.py"),
			2: mk(2, "broken/thing.py"),
			3: mk(3, "search/index.py"),
		},
	}
}

func TestNamerFailureLeavesFeatureUnnamed(t *testing.T) {
	var calls int32
	sum := summarizer.Func(func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&calls, 1)
		switch {
		case strings.Contains(prompt, "billing/"):
			return "```json\n{\"name\": \"Invoice Billing\", \"display_name\": \"Invoice Billing\", \"reasoning\": \"invoices\"}\n```", nil
		case strings.Contains(prompt, "users/"):
			return `Sure! {"name": "user-onboarding"}`, nil
		case strings.Contains(prompt, "broken/"):
			return "", errors.New("upstream exploded")
		default:
			return "no json here", nil
		}
	})

	res := sampleResult()
	n := NewNamer(sum, nil, NamerOptions{Concurrency: 2})
	stats, err := n.NameAll(context.Background(), res, false)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Named != 2 || stats.Failed != 2 {
		t.Errorf("stats = %+v, want 2 named and 2 failed", stats)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if f := res.Features[0]; f.Name != "invoice-billing" || f.DisplayName != "Invoice Billing" || f.NamedAt == nil {
		t.Errorf("feature 0 = %+v", f)
	}
	if f := res.Features[1]; f.Name != "user-onboarding" || f.DisplayName != "User Onboarding" {
		t.Errorf("feature 1 = %+v", f)
	}
	for _, id := range []int{2, 3} {
		if f := res.Features[id]; f.Named() || f.Label() != fmt.Sprintf("Feature %d", id) {
			t.Errorf("feature %d should stay unnamed: %+v", id, f)
		}
	}
}

func TestNamerCacheAndCap(t *testing.T) {
	ctx := context.Background()
	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var calls int32
	sum := summarizer.Func(func(ctx context.Context, prompt string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return `{"name": "some-feature", "display_name": "Some Feature"}`, nil
	})

	capped := NewNamer(sum, c, NamerOptions{MaxCalls: 3, Concurrency: 4})
	res := sampleResult()
	stats, err := capped.NameAll(ctx, res, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Named != 3 || stats.Capped != 1 || calls != 3 {
		t.Errorf("stats = %+v, calls = %d", stats, calls)
	}

	// same memberships: names come from the cache, only the capped one is asked
	atomic.StoreInt32(&calls, 0)
	res2 := sampleResult()
	stats, err = NewNamer(sum, c, NamerOptions{}).NameAll(ctx, res2, false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FromCache != 3 || stats.Named != 1 || calls != 1 {
		t.Errorf("second run stats = %+v, calls = %d", stats, calls)
	}

	// already named features are skipped
	stats, _ = NewNamer(sum, c, NamerOptions{}).NameAll(ctx, res2, false)
	if stats.Skipped != 4 {
		t.Errorf("third run stats = %+v", stats)
	}
}

func TestNamerNotConfigured(t *testing.T) {
	_, err := NewNamer(nil, nil, NamerOptions{}).NameAll(context.Background(), sampleResult(), false)
	if !errors.Is(err, summarizer.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestPrompt(t *testing.T) {
	f := &Feature{ID: 3, FileCount: 2, SampleFiles: []SampleFile{
		{Path: "billing/invoice.py", Summary: "Builds invoices"},
		{Path: "billing/tax.py"},
	}}
	p := Prompt(f)
	for _, want := range []string{
		"Feature ID: 3, 2 files",
		"1. billing/invoice.py - Builds invoices",
		"2. billing/tax.py - (no summary available)",
		`"display_name"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{`{"name": "checkout-flow", "display_name": "Checkout Flow", "reasoning": "cart"}`, Name{"checkout-flow", "Checkout Flow", "cart"}, false},
		{"```json\n{\"name\": \"Payment Processing\"}\n```", Name{"payment-processing", "Payment Processing", ""}, false},
		{`{"name": "user_onboarding", "display_name": " Onboarding "}`, Name{"user-onboarding", "Onboarding", ""}, false},
		{`{"name": ""}`, Name{}, true},
		{`not json`, Name{}, true},
		{`{"name": `, Name{}, true},
	}
	for _, tt := range tests {
		got, err := ParseName(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseName(%q) err = %v", tt.in, err)
			continue
		}
		if err != nil && !errors.Is(err, ErrBadResponse) {
			t.Errorf("ParseName(%q) err = %v, want ErrBadResponse", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseName(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestArtifact(t *testing.T) {
	dir := t.TempDir()
	a := NewArtifact(dir, nil)

	if _, err := a.Load(); !errors.Is(err, ErrNoFeatures) {
		t.Errorf("missing artifact: err = %v, want ErrNoFeatures", err)
	}
	if !a.IsStale("h1") {
		t.Error("missing artifact should be stale")
	}
	if _, err := a.UpdateFeatureName(0, "x", "X", ""); !errors.Is(err, ErrNoFeatures) {
		t.Errorf("rename without artifact: err = %v", err)
	}

	if err := a.Save(sampleResult()); err != nil {
		t.Fatal(err)
	}
	loaded, err := a.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Features) != 4 || loaded.Features[1].Files[0] != "users/email.py" {
		t.Errorf("loaded = %+v", loaded.Features)
	}
	if a.IsStale("h1") || !a.IsStale("h2") {
		t.Error("staleness should follow the graph hash")
	}

	f, err := a.UpdateFeatureName(1, "user-onboarding", "User Onboarding", "manual")
	if err != nil {
		t.Fatal(err)
	}
	if f.NamedAt == nil {
		t.Error("rename should set named_at")
	}
	reloaded, _ := a.Load()
	if reloaded.Features[1].DisplayName != "User Onboarding" {
		t.Errorf("rename not persisted: %+v", reloaded.Features[1])
	}
	if _, err := a.UpdateFeatureName(99, "x", "X", ""); !errors.Is(err, ErrFeatureNotFound) {
		t.Errorf("unknown feature: err = %v, want ErrFeatureNotFound", err)
	}

	if err := os.WriteFile(a.Path(), []byte(`{"version": 99, "features": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Load(); !errors.Is(err, ErrNoFeatures) {
		t.Errorf("version mismatch: err = %v, want ErrNoFeatures", err)
	}
}
