package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheOpenClose(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}

	expectedPath := filepath.Join(dir, "cache.db")
	if c.Path() != expectedPath {
		t.Errorf("path = %q, want %q", c.Path(), expectedPath)
	}
	if err := c.Close(); err != nil {
		t.Errorf("close: %v", err)
	}

	// Reopen existing database
	c2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen cache: %v", err)
	}
	c2.Close()
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	snap, err := c.LoadSnapshot(ctx, "auth")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected no snapshot yet, got %+v", snap)
	}

	recorded := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := c.SaveSnapshot(ctx, &PackSnapshot{
		PackName:   "auth",
		Hashes:     map[string]string{"auth/login.py": "h1", "auth/token.py": "h2"},
		RecordedAt: recorded,
	}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap, err = c.LoadSnapshot(ctx, "auth")
	if err != nil || snap == nil {
		t.Fatalf("LoadSnapshot: %v %v", snap, err)
	}
	if len(snap.Hashes) != 2 || snap.Hashes["auth/token.py"] != "h2" {
		t.Errorf("unexpected hashes: %v", snap.Hashes)
	}
	if !snap.RecordedAt.Equal(recorded) {
		t.Errorf("RecordedAt = %v, want %v", snap.RecordedAt, recorded)
	}

	// Saving again replaces, not merges.
	if err := c.SaveSnapshot(ctx, &PackSnapshot{PackName: "auth", Hashes: map[string]string{"auth/login.py": "h3"}}); err != nil {
		t.Fatal(err)
	}
	snap, _ = c.LoadSnapshot(ctx, "auth")
	if len(snap.Hashes) != 1 || snap.Hashes["auth/login.py"] != "h3" {
		t.Errorf("expected replaced snapshot, got %v", snap.Hashes)
	}
}

func TestEmptySnapshotIsStillASnapshot(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	if err := c.SaveSnapshot(ctx, &PackSnapshot{PackName: "empty", Hashes: map[string]string{}}); err != nil {
		t.Fatal(err)
	}
	snap, err := c.LoadSnapshot(ctx, "empty")
	if err != nil || snap == nil {
		t.Fatalf("expected empty snapshot, got %v %v", snap, err)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	if err := c.SaveSnapshot(ctx, &PackSnapshot{PackName: "api", Hashes: map[string]string{"a": "1"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteSnapshot(ctx, "api"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if snap, _ := c.LoadSnapshot(ctx, "api"); snap != nil {
		t.Errorf("expected snapshot gone, got %+v", snap)
	}
}

func TestFeatureNames(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	fn, err := c.GetFeatureName(ctx, "k1")
	if err != nil || fn != nil {
		t.Fatalf("expected miss, got %v %v", fn, err)
	}

	if err := c.SetFeatureName(ctx, &FeatureName{Key: "k1", Name: "user-auth", DisplayName: "User Auth", Reasoning: "login files"}); err != nil {
		t.Fatalf("SetFeatureName: %v", err)
	}

	fn, err = c.GetFeatureName(ctx, "k1")
	if err != nil || fn == nil {
		t.Fatalf("GetFeatureName: %v %v", fn, err)
	}
	if fn.Name != "user-auth" || fn.DisplayName != "User Auth" || fn.Reasoning != "login files" {
		t.Errorf("unexpected name: %+v", fn)
	}
	if fn.NamedAt.IsZero() {
		t.Error("expected NamedAt to be set")
	}
}

func TestClearAndStats(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	_ = c.SaveSnapshot(ctx, &PackSnapshot{PackName: "a", Hashes: map[string]string{"x": "1", "y": "2"}})
	_ = c.SaveSnapshot(ctx, &PackSnapshot{PackName: "b", Hashes: map[string]string{"z": "3"}})
	_ = c.SetFeatureName(ctx, &FeatureName{Key: "k", Name: "n", DisplayName: "N"})

	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.SnapshotPacks != 2 || stats.SnapshotFiles != 3 || stats.FeatureNames != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, _ = c.GetStats()
	if stats.SnapshotFiles != 0 || stats.FeatureNames != 0 {
		t.Errorf("expected empty cache, got %+v", stats)
	}
	if snap, _ := c.LoadSnapshot(ctx, "a"); snap != nil {
		t.Error("snapshot meta should be cleared too")
	}
}
