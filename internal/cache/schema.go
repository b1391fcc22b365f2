package cache

// schemaSQL defines the SQLite schema for the cache database.
// Tables:
//   - pack_snapshots: content hash per file of a pack at its last diff
//   - snapshot_meta: when each pack snapshot was recorded
//   - feature_names: summarizer output keyed by feature membership hash
const schemaSQL = `
CREATE TABLE IF NOT EXISTS pack_snapshots (
    pack_name TEXT NOT NULL,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    PRIMARY KEY (pack_name, file_path)
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
    pack_name TEXT PRIMARY KEY,
    recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_names (
    membership_key TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    display_name TEXT NOT NULL,
    reasoning TEXT,
    named_at TEXT NOT NULL
);
`

// initSchema creates the database tables and indexes if they don't exist.
func (c *Cache) initSchema() error {
	_, err := c.db.Exec(schemaSQL)
	return err
}
