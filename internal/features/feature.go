// Package features detects cohesive groups of files ("features") by running
// Louvain community detection on the file-level projection of the code graph,
// names them with a summarizer, and persists the result as a JSON artifact.
package features

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ResultVersion is the artifact format version. Artifacts with another
// version are ignored on load.
const ResultVersion = 1

// ErrNoGraph is returned when the graph holds no File nodes.
var ErrNoGraph = errors.New("graph is empty: run `autodoc graph build` first")

// ErrNoFeatures is returned when no feature artifact exists.
var ErrNoFeatures = errors.New("no features cache found: run `autodoc features detect` first")

// ErrFeatureNotFound is returned for an unknown feature ID.
var ErrFeatureNotFound = errors.New("feature not found")

// SampleFile is a representative file of a feature.
type SampleFile struct {
	Path    string `json:"path" yaml:"path"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Feature is one detected community of files.
type Feature struct {
	ID int `json:"id" yaml:"id"`
	// Key identifies the membership: same files, same key across runs.
	Key         string       `json:"key" yaml:"key"`
	Files       []string     `json:"files" yaml:"files"`
	FileCount   int          `json:"file_count" yaml:"file_count"`
	SampleFiles []SampleFile `json:"sample_files" yaml:"sample_files"`

	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	DisplayName string     `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Reasoning   string     `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	NamedAt     *time.Time `json:"named_at,omitempty" yaml:"named_at,omitempty"`
}

// Named reports whether the feature has a name.
func (f *Feature) Named() bool {
	return f.Name != ""
}

// Label is the display name, falling back to "Feature <id>".
func (f *Feature) Label() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("Feature %d", f.ID)
}

// Contains reports whether path belongs to the feature.
func (f *Feature) Contains(path string) bool {
	i := sort.SearchStrings(f.Files, path)
	return i < len(f.Files) && f.Files[i] == path
}

// Result is a detection run: the partition plus how it was produced.
type Result struct {
	Version        int     `json:"version" yaml:"version"`
	RunID          string  `json:"run_id" yaml:"run_id"`
	Algorithm      string  `json:"algorithm" yaml:"algorithm"`
	Seed           int64   `json:"seed" yaml:"seed"`
	Resolution     float64 `json:"resolution" yaml:"resolution"`
	CommunityCount int     `json:"community_count" yaml:"community_count"`
	Modularity     float64 `json:"modularity" yaml:"modularity"`
	Levels         int     `json:"ran_levels" yaml:"ran_levels"`
	GraphHash      string  `json:"graph_hash" yaml:"graph_hash"`
	MaxDegree      int     `json:"max_degree_threshold" yaml:"max_degree_threshold"`
	IncludeCalls   bool    `json:"include_calls" yaml:"include_calls"`

	Excluded   []string `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	GodObjects []string `json:"god_objects,omitempty" yaml:"god_objects,omitempty"`

	Features   map[int]*Feature `json:"features" yaml:"features"`
	DetectedAt time.Time        `json:"detected_at" yaml:"detected_at"`
}

// List returns features ordered by ID.
func (r *Result) List() []*Feature {
	out := make([]*Feature, 0, len(r.Features))
	for _, f := range r.Features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the feature with the given ID.
func (r *Result) Get(id int) (*Feature, error) {
	f, ok := r.Features[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrFeatureNotFound, id)
	}
	return f, nil
}

// ForFile returns the feature containing path, or nil.
func (r *Result) ForFile(path string) *Feature {
	for _, f := range r.List() {
		if f.Contains(path) {
			return f
		}
	}
	return nil
}

// FileCount sums file_count over all features.
func (r *Result) FileCount() int {
	n := 0
	for _, f := range r.Features {
		n += f.FileCount
	}
	return n
}
