package packs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Emberfield/autodoc/internal/cache"
	"github.com/Emberfield/autodoc/internal/hashing"
)

// SnapshotStore persists pack snapshots between invocations.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, pack string) (*cache.PackSnapshot, error)
	SaveSnapshot(ctx context.Context, snap *cache.PackSnapshot) error
}

// DiffResult lists how a pack's files changed since its last snapshot.
type DiffResult struct {
	Pack      string   `json:"pack" yaml:"pack"`
	Added     []string `json:"added" yaml:"added"`
	Removed   []string `json:"removed" yaml:"removed"`
	Modified  []string `json:"modified" yaml:"modified"`
	Unchanged int      `json:"unchanged" yaml:"unchanged"`
	// Baseline is true when no earlier snapshot existed; every file is Added.
	Baseline   bool      `json:"baseline" yaml:"baseline"`
	PreviousAt time.Time `json:"previous_at,omitempty" yaml:"previous_at,omitempty"`
}

// Changed reports whether anything differs from the previous snapshot.
func (d *DiffResult) Changed() bool {
	return len(d.Added)+len(d.Removed)+len(d.Modified) > 0
}

// Diff compares the pack's current files and content hashes against the last
// recorded snapshot, then records the current state as the new snapshot.
func (r *Registry) Diff(ctx context.Context, name string, src FileSource, snaps SnapshotStore) (*DiffResult, error) {
	if _, ok := r.packs[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}

	current, err := r.Snapshot(ctx, name, src)
	if err != nil {
		return nil, err
	}

	prev, err := snaps.LoadSnapshot(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	res := Compare(name, prev, current)

	if err := snaps.SaveSnapshot(ctx, current); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return res, nil
}

// Snapshot hashes the current content of every file in the pack.
func (r *Registry) Snapshot(ctx context.Context, name string, src FileSource) (*cache.PackSnapshot, error) {
	all, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	files, err := r.Files(name, all)
	if err != nil {
		return nil, err
	}

	snap := &cache.PackSnapshot{
		PackName:   name,
		Hashes:     make(map[string]string, len(files)),
		RecordedAt: time.Now().UTC(),
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := src.Read(ctx, f)
		if err != nil {
			return nil, err
		}
		snap.Hashes[f] = hashing.Content(data)
	}
	return snap, nil
}

// Compare diffs two snapshots of the same pack. A nil prev is a baseline.
func Compare(pack string, prev, current *cache.PackSnapshot) *DiffResult {
	res := &DiffResult{
		Pack:     pack,
		Added:    []string{},
		Removed:  []string{},
		Modified: []string{},
	}

	var old map[string]string
	if prev == nil {
		res.Baseline = true
	} else {
		old = prev.Hashes
		res.PreviousAt = prev.RecordedAt
	}

	for f, h := range current.Hashes {
		oh, existed := old[f]
		switch {
		case !existed:
			res.Added = append(res.Added, f)
		case oh != h:
			res.Modified = append(res.Modified, f)
		default:
			res.Unchanged++
		}
	}
	for f := range old {
		if _, still := current.Hashes[f]; !still {
			res.Removed = append(res.Removed, f)
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	sort.Strings(res.Modified)
	return res
}
