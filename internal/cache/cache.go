// Package cache provides SQLite-backed persistence for state that outlives a
// single invocation: pack snapshots used by pack diffs, and feature names keyed
// by community membership so repeated detections don't re-ask the summarizer.
// The cache is stored in .autodoc/cache.db.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Cache manages the .autodoc/cache.db SQLite database.
type Cache struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the cache database in the given state directory.
// It initializes the schema if the database is new.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	dbPath := filepath.Join(dir, "cache.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// Naming workers write concurrently; serialize at the pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	cache := &Cache{db: db, dbPath: dbPath}

	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return cache, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Clear removes all cached data.
func (c *Cache) Clear() error {
	_, err := c.db.Exec("DELETE FROM pack_snapshots; DELETE FROM snapshot_meta; DELETE FROM feature_names;")
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

// DB returns the underlying database connection for advanced operations.
func (c *Cache) DB() *sql.DB {
	return c.db
}

// Stats holds cache row counts.
type Stats struct {
	SnapshotPacks int64 `json:"snapshot_packs" yaml:"snapshot_packs"`
	SnapshotFiles int64 `json:"snapshot_files" yaml:"snapshot_files"`
	FeatureNames  int64 `json:"feature_names" yaml:"feature_names"`
}

// GetStats returns statistics about the cache contents.
func (c *Cache) GetStats() (*Stats, error) {
	var stats Stats

	err := c.db.QueryRow("SELECT COUNT(DISTINCT pack_name), COUNT(*) FROM pack_snapshots").
		Scan(&stats.SnapshotPacks, &stats.SnapshotFiles)
	if err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}

	err = c.db.QueryRow("SELECT COUNT(*) FROM feature_names").Scan(&stats.FeatureNames)
	if err != nil {
		return nil, fmt.Errorf("count feature names: %w", err)
	}

	return &stats, nil
}
