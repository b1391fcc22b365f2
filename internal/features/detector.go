package features

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Emberfield/autodoc/internal/hashing"
	"github.com/Emberfield/autodoc/internal/logging"
	"github.com/Emberfield/autodoc/internal/metrics"
	"github.com/Emberfield/autodoc/internal/store"
)

// DefaultSampleSize is the number of representative files kept per feature.
const DefaultSampleSize = 5

// Options configures a Detector.
type Options struct {
	Projection ProjectionOptions
	Louvain    LouvainOptions
	SampleSize int
	Logger     *slog.Logger
}

// Detector reads the code graph and partitions its files into features.
type Detector struct {
	store  store.Graph
	opts   Options
	logger *slog.Logger
}

// NewDetector creates a detector over s.
func NewDetector(s store.Graph, opts Options) *Detector {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	opts.Louvain.Validate()
	return &Detector{store: s, opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// Detect runs community detection on the current graph. Features are
// returned unnamed; see Namer.
func (d *Detector) Detect(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "features.Detect")
	defer span.End()

	nodes, err := d.store.Nodes(ctx, store.NodeFilter{})
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	edges, err := d.store.Edges(ctx, store.EdgeFilter{Rels: []string{store.RelImports, store.RelCalls}})
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	proj := Project(nodes, edges, d.opts.Projection)
	if len(proj.Files) == 0 {
		return nil, ErrNoGraph
	}
	d.logger.Debug("projected file graph",
		"files", len(proj.Files),
		"pairs", proj.EdgeCount(),
		"excluded", len(proj.Excluded),
		"god_objects", len(proj.GodObjects))

	part, err := Louvain(ctx, proj, d.opts.Louvain)
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]string)
	for _, n := range nodes {
		if n.Kind == store.KindFile && n.Summary != "" {
			summaries[n.FilePath] = n.Summary
		}
	}
	scores := metrics.PageRank(proj.Dependencies(), metrics.DefaultPageRankConfig()).Scores

	res := &Result{
		Version:        ResultVersion,
		RunID:          uuid.NewString(),
		Algorithm:      AlgorithmLouvain,
		Seed:           d.opts.Louvain.Seed,
		Resolution:     d.opts.Louvain.Resolution,
		CommunityCount: part.Count,
		Modularity:     part.Modularity,
		Levels:         part.Levels,
		GraphHash:      graphHash(nodes, len(edges)),
		MaxDegree:      d.opts.Projection.MaxDegree,
		IncludeCalls:   d.opts.Projection.IncludeCalls,
		Excluded:       proj.Excluded,
		GodObjects:     proj.GodObjects,
		Features:       make(map[int]*Feature, part.Count),
		DetectedAt:     time.Now().UTC(),
	}

	for _, f := range proj.Files {
		id := part.Community[f]
		feat, ok := res.Features[id]
		if !ok {
			feat = &Feature{ID: id}
			res.Features[id] = feat
		}
		feat.Files = append(feat.Files, f)
	}
	for _, feat := range res.Features {
		sort.Strings(feat.Files)
		feat.FileCount = len(feat.Files)
		feat.Key = hashing.Set(feat.Files)
		for _, ns := range metrics.TopN(feat.Files, scores, d.opts.SampleSize) {
			feat.SampleFiles = append(feat.SampleFiles, SampleFile{Path: ns.Node, Summary: summaries[ns.Node]})
		}
	}

	span.SetAttributes(
		attribute.String("run_id", res.RunID),
		attribute.Int("communities_found", res.CommunityCount),
		attribute.Float64("modularity", res.Modularity),
	)
	d.logger.Info("detected features",
		"communities", res.CommunityCount,
		"modularity", res.Modularity,
		"levels", res.Levels)
	return res, nil
}

// GraphHash fingerprints the graph's file set and edge count; a features
// artifact with another hash is stale.
func (d *Detector) GraphHash(ctx context.Context) (string, error) {
	nodes, err := d.store.Nodes(ctx, store.NodeFilter{Kind: store.KindFile})
	if err != nil {
		return "", fmt.Errorf("load files: %w", err)
	}
	edges, err := d.store.Edges(ctx, store.EdgeFilter{Rels: []string{store.RelImports, store.RelCalls}})
	if err != nil {
		return "", fmt.Errorf("load edges: %w", err)
	}
	return graphHash(nodes, len(edges)), nil
}

func graphHash(nodes []*store.Node, edgeCount int) string {
	var files []string
	for _, n := range nodes {
		if n.Kind == store.KindFile {
			files = append(files, n.FilePath)
		}
	}
	sort.Strings(files)
	return hashing.Fields(append(files, strconv.Itoa(edgeCount))...)
}
