// Package impact maps a set of changed files onto the context packs and
// features they affect.
//
// Analysis is pure: it reads the pack registry (and optionally a feature
// result) and never mutates either.
package impact

import (
	"fmt"

	"github.com/Emberfield/autodoc/internal/features"
	"github.com/Emberfield/autodoc/internal/packs"
)

// Report is the outcome of an impact analysis.
type Report struct {
	// AffectedPacks holds packs matching a changed file plus every pack that
	// depends on one of them, in registration order.
	AffectedPacks []string `json:"affected_packs" yaml:"affected_packs"`
	// DirectPacks is the subset of AffectedPacks matching a changed file.
	DirectPacks          []string          `json:"direct_packs" yaml:"direct_packs"`
	CriticalPacks        []string          `json:"critical_packs" yaml:"critical_packs"`
	FilesAffected        []string          `json:"files_affected" yaml:"files_affected"`
	SecurityImplications []string          `json:"security_implications" yaml:"security_implications"`
	AffectedFeatures     []AffectedFeature `json:"affected_features,omitempty" yaml:"affected_features,omitempty"`
}

// AffectedFeature is a feature containing at least one changed file.
type AffectedFeature struct {
	ID           int      `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	ChangedFiles []string `json:"changed_files" yaml:"changed_files"`
}

// Analyze computes the packs affected by changed.
func Analyze(changed []string, reg *packs.Registry) *Report {
	r := &Report{
		AffectedPacks:        []string{},
		DirectPacks:          []string{},
		CriticalPacks:        []string{},
		FilesAffected:        []string{},
		SecurityImplications: []string{},
	}

	seenFile := make(map[string]bool)
	for _, f := range changed {
		p := packs.NormalizePath(f)
		if p == "" || seenFile[p] {
			continue
		}
		seenFile[p] = true
		r.FilesAffected = append(r.FilesAffected, p)
	}
	if len(r.FilesAffected) == 0 || reg == nil {
		return r
	}

	direct := make(map[string]bool)
	for _, f := range r.FilesAffected {
		for _, name := range reg.PacksForFile(f) {
			direct[name] = true
		}
	}

	affected := make(map[string]bool, len(direct))
	for name := range direct {
		affected[name] = true
		for _, dep := range reg.Dependents(name) {
			affected[dep] = true
		}
	}

	for _, name := range reg.Names() {
		if !affected[name] {
			continue
		}
		r.AffectedPacks = append(r.AffectedPacks, name)
		if direct[name] {
			r.DirectPacks = append(r.DirectPacks, name)
		}

		p, _ := reg.Get(name)
		switch p.SecurityLevel {
		case packs.SecurityCritical:
			r.CriticalPacks = append(r.CriticalPacks, name)
			r.SecurityImplications = append(r.SecurityImplications,
				fmt.Sprintf("CRITICAL: Changes affect %s (security level: critical)", p.Label()))
		case packs.SecurityHigh:
			r.SecurityImplications = append(r.SecurityImplications,
				fmt.Sprintf("HIGH: Changes affect %s (security level: high)", p.Label()))
		}
	}
	return r
}

// AnalyzeWithFeatures is Analyze plus the features containing a changed file.
// A nil result behaves like Analyze.
func AnalyzeWithFeatures(changed []string, reg *packs.Registry, res *features.Result) *Report {
	r := Analyze(changed, reg)
	if res == nil {
		return r
	}

	byID := make(map[int]*AffectedFeature)
	var order []int
	for _, f := range r.FilesAffected {
		feat := res.ForFile(f)
		if feat == nil {
			continue
		}
		af, ok := byID[feat.ID]
		if !ok {
			af = &AffectedFeature{ID: feat.ID, Name: feat.Label()}
			byID[feat.ID] = af
			order = append(order, feat.ID)
		}
		af.ChangedFiles = append(af.ChangedFiles, f)
	}
	for _, id := range order {
		r.AffectedFeatures = append(r.AffectedFeatures, *byID[id])
	}
	return r
}
